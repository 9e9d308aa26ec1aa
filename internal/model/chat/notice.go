package chat

// Level 提示级别。
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a human readable report produced while processing a turn.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Info, Warning and Error build notices of the matching level.
func Info(msg string) Notice    { return Notice{Level: LevelInfo, Message: msg} }
func Warning(msg string) Notice { return Notice{Level: LevelWarning, Message: msg} }
func Error(msg string) Notice   { return Notice{Level: LevelError, Message: msg} }
