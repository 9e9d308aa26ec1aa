package speech

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// 提供方错误统一归类为以下哨兵错误，适配器据此决定提示与重试。
var (
	ErrUnintelligible     = errors.New("speech could not be understood")
	ErrServiceUnavailable = errors.New("speech service unavailable")
	ErrRateLimited        = errors.New("speech service rate limited")
	ErrEmptyText          = errors.New("text to synthesize is empty")
	ErrNotConfigured      = errors.New("speech provider not configured")
)

// classifyStatus wraps err with the sentinel matching an HTTP status code.
func classifyStatus(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case status >= 500, status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	default:
		return err
	}
}

// isTransportError reports network failures that never reached the service.
func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
