// Package logging provides a subsystem-prefixed wrapper over the standard
// library logger.
//
// Grounded on teacher cmd/server/main.go's direct log.Printf/log.Fatalf
// usage: no third-party structured logger is a direct teacher
// dependency, so this stays on the standard library rather than
// introducing one speculatively (see DESIGN.md).
package logging

import (
	"io"
	"log"
	"os"
)

// Logger writes lines prefixed with a subsystem tag, e.g. "[server] ".
type Logger struct {
	std *log.Logger
}

// New creates a Logger writing to w (os.Stderr if w is nil) tagged with
// subsystem.
func New(w io.Writer, subsystem string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{std: log.New(w, "["+subsystem+"] ", log.LstdFlags)}
}

func (l *Logger) Printf(format string, args ...any) { l.std.Printf(format, args...) }
func (l *Logger) Println(args ...any)               { l.std.Println(args...) }
func (l *Logger) Fatalf(format string, args ...any)  { l.std.Fatalf(format, args...) }

// With returns a child Logger with subsystem appended to the prefix, e.g.
// on a "[server] " logger, With("conn-7") produces "[server] conn-7 " lines.
func (l *Logger) With(subsystem string) *Logger {
	return &Logger{std: log.New(l.std.Writer(), l.std.Prefix()+subsystem+" ", log.LstdFlags)}
}
