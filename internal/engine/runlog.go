package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrlokans/shelfsync/internal/entities"
)

// LogSink persists the warnings and errors logged during a run.
type LogSink interface {
	AppendLog(entry *entities.SyncLog) error
}

// runLogger logs through the engine logger and copies warnings and errors to the
// run's persisted log.
type runLogger struct {
	*log.Logger
	runID string
	sink  LogSink
}

func (l *runLogger) Warn(msg string, keyvals ...any) {
	l.Logger.Warn(msg, keyvals...)
	l.persist(log.WarnLevel, msg, keyvals)
}

func (l *runLogger) Error(msg string, keyvals ...any) {
	l.Logger.Error(msg, keyvals...)
	l.persist(log.ErrorLevel, msg, keyvals)
}

func (l *runLogger) persist(level log.Level, msg string, keyvals []any) {
	if l.sink == nil {
		return
	}

	entry := &entities.SyncLog{
		RunID:     l.runID,
		Level:     level.String(),
		Message:   msg,
		Details:   encodeDetails(keyvals),
		CreatedAt: time.Now(),
	}
	if err := l.sink.AppendLog(entry); err != nil {
		l.Logger.Debug("failed to persist log entry", "err", err)
	}
}

// encodeDetails renders key/value pairs as a JSON object. Errors are stored as their message.
func encodeDetails(keyvals []any) string {
	if len(keyvals) < 2 {
		return ""
	}

	details := make(map[string]any, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		value := keyvals[i+1]
		switch v := value.(type) {
		case error:
			value = v.Error()
		case fmt.Stringer:
			value = v.String()
		}
		details[fmt.Sprint(keyvals[i])] = value
	}

	b, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprint(details)
	}
	return string(b)
}
