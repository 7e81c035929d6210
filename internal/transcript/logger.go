// Package transcript writes conversation transcripts as NDJSON files.
package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Directions of a transcript event.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one line of a session transcript.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	SessionID  string    `json:"session_id"`
	Direction  string    `json:"direction"`
	EventType  string    `json:"event_type"`
	Step       string    `json:"step,omitempty"`
	ContentRaw string    `json:"content_raw"`
	Content    string    `json:"content"`
}

// Logger records transcript events.
type Logger interface {
	Log(event Event)
	Close() error
}

// NopLogger discards every event.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(Event) {}

// Close implements Logger.
func (NopLogger) Close() error { return nil }

// ConversationLogger appends events asynchronously to <dir>/<session_id>.ndjson
// and, when enabled, to a global NDJSON file.
type ConversationLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// NewConversationLogger creates the log directories and starts the writer goroutine.
func NewConversationLogger(cfg Config, logger *slog.Logger) (*ConversationLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create transcript dir: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create global transcript dir: %w", err)
		}
	}

	l := &ConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues an event. Events are dropped when the queue is full.
func (l *ConversationLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Transcript queue full, dropping event", "session_id", event.SessionID, "event_type", event.EventType)
	}
}

// Close flushes queued events and stops the writer.
func (l *ConversationLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
	})
	return nil
}

func (l *ConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := sonic.Marshal(event)
		if err != nil {
			l.logger.Error("Failed to encode transcript event", "error", err, "session_id", event.SessionID)
			continue
		}
		line = append(line, '\n')

		path, err := l.sessionPath(event.SessionID)
		if err != nil {
			l.logger.Warn("Skipping transcript event", "error", err)
			continue
		}
		if err := appendLine(path, line); err != nil {
			l.logger.Error("Failed to write transcript", "error", err, "path", path)
		}
		if l.cfg.GlobalEnabled {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.logger.Error("Failed to write global transcript", "error", err, "path", l.cfg.GlobalPath)
			}
		}
	}
}

func (l *ConversationLogger) sessionPath(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || strings.HasPrefix(sessionID, ".") {
		return "", errors.New("unsafe session id for transcript path")
	}
	return filepath.Join(l.cfg.Dir, sessionID+".ndjson"), nil
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var (
	ansiPattern       = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// cleanForReadability strips escape sequences and control characters and
// collapses whitespace so transcripts read as one line per message.
func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
