package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnInFlight    = errors.New("another turn is already in progress for this session")
)

// Defaults 新会话的初始设置。
type Defaults struct {
	PersonalityID  string
	ResponseLength chat.ResponseLength
}

// Service keeps the live sessions of this process. Nothing outlives the process.
type Service struct {
	personas persona.Store
	defaults Defaults

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService bootstraps the in-memory session registry.
func NewService(personas persona.Store, defaults Defaults) *Service {
	if defaults.PersonalityID == "" {
		defaults.PersonalityID = persona.DefaultID
	}
	if !defaults.ResponseLength.Valid() {
		defaults.ResponseLength = chat.DefaultResponseLength
	}
	return &Service{
		personas: personas,
		defaults: defaults,
		sessions: make(map[string]*Session),
	}
}

// CreateSession provisions an empty session. An empty personalityID selects the default.
func (s *Service) CreateSession(_ context.Context, personalityID string) (*Session, error) {
	if personalityID == "" {
		personalityID = s.defaults.PersonalityID
	}

	session, err := NewSession(uuid.NewString(), s.personas, chat.Settings{
		PersonalityID:  personalityID,
		ResponseLength: s.defaults.ResponseLength,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Info().Str("component", "chat").Str("session", session.ID).Str("personality", session.Settings().PersonalityID).Msg("session created")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// DeleteSession discards a session together with its log and cache.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// ListSessions returns the live sessions ordered by creation time.
func (s *Service) ListSessions(_ context.Context) []*Session {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many were removed.
func (s *Service) Sweep(now time.Time, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if now.Sub(session.LastActive()) <= maxIdle {
			continue
		}
		// 正在处理回合的会话不回收。
		if !session.TryBeginTurn() {
			continue
		}
		delete(s.sessions, id)
		session.turnMu.Unlock()
		removed++
	}
	if removed > 0 {
		log.Info().Str("component", "chat").Int("removed", removed).Int("remaining", len(s.sessions)).Msg("idle sessions swept")
	}
	return removed
}

// RunSweeper evicts idle sessions every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Sweep(t, maxIdle)
		}
	}
}
