package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	rootMu  sync.Mutex
	root    = newRoot(os.Stderr, log.WarnLevel)
	derived []*log.Logger
)

func init() {
	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLevel(log.DebugLevel)
	}
}

func newRoot(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
}

// Logger is a prefixed, leveled key/value logger.
type Logger = log.Logger

// New returns a logger whose lines are tagged with prefix. Package-level
// loggers are fine: SetLevel and SetOutput reach every logger returned here.
func New(prefix string) *Logger {
	rootMu.Lock()
	defer rootMu.Unlock()
	l := root.WithPrefix(prefix)
	derived = append(derived, l)
	return l
}

// SetLevel sets the level of every logger.
func SetLevel(level log.Level) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root.SetLevel(level)
	for _, l := range derived {
		l.SetLevel(level)
	}
}

// SetLevelString parses names such as "debug" or "warn". Unknown names leave
// the level unchanged and return an error.
func SetLevelString(name string) error {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return err
	}
	SetLevel(level)
	return nil
}

// SetOutput redirects every logger to w.
func SetOutput(w io.Writer) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root.SetOutput(w)
	for _, l := range derived {
		l.SetOutput(w)
	}
}
