package mailbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Audit block directions.
const (
	Outgoing = "OUTGOING"
	Incoming = "INCOMING"
)

// DefaultAuditPath is where the audit log is written when no path is set.
const DefaultAuditPath = "data/mailbox_log.txt"

const auditTimeFormat = "2006-01-02_15-04-05"

// AuditLog records every outbound payload and every normalized reply.
type AuditLog interface {
	Record(direction string, payload any) error
}

// FileAuditLog appends timestamped human-readable blocks to a writer.
type FileAuditLog struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewFileAuditLog writes audit blocks to w.
func NewFileAuditLog(w io.Writer) *FileAuditLog {
	return &FileAuditLog{w: w, now: time.Now}
}

// Record writes one block:
//
//	[2006-01-02_15-04-05] OUTGOING:
//	{ ...indented JSON... }
func (l *FileAuditLog) Record(direction string, payload any) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprintf("%+v", payload))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = fmt.Fprintf(l.w, "[%s] %s:\n%s\n\n", l.now().Format(auditTimeFormat), direction, body)
	return err
}

// Close closes the underlying writer when it is closable.
func (l *FileAuditLog) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AuditConfig describes a file-backed audit log.
type AuditConfig struct {
	// Fs holds the log file. Rotation applies only on the OS filesystem;
	// any other Fs gets a plain append-only file. Nil means the OS filesystem.
	Fs         afero.Fs
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OpenAuditLog opens the audit log file, creating its directory.
func OpenAuditLog(cfg AuditConfig) (*FileAuditLog, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultAuditPath
	}
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	if _, ok := fsys.(*afero.OsFs); !ok {
		f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		return NewFileAuditLog(f), nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}

	return NewFileAuditLog(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}), nil
}

type auditEntry struct {
	Exchange string `json:"exchange"`
	Provider string `json:"provider"`
	Round    int    `json:"continuation,omitempty"`
	Payload  any    `json:"payload"`
}
