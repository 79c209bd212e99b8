package logger

import (
	"io"
	"strings"

	"github.com/scrypster/memgraph/internal/secrets"
)

// Redactor masks secret-shaped text before it reaches a log sink. It uses
// the same patterns as the secrets detector.
type Redactor struct {
	detector *secrets.Detector
}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{detector: secrets.NewDetector()}
}

// AddPattern adds a custom redaction pattern; the whole match is masked.
func (r *Redactor) AddPattern(pattern string) error {
	return r.detector.AddPattern("custom", pattern, 0)
}

// Redact replaces every detected secret in s with [REDACTED].
func (r *Redactor) Redact(s string) string {
	matches := r.detector.Find(s)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m.Start])
		b.WriteString("[REDACTED]")
		last = m.End
	}
	b.WriteString(s[last:])
	return b.String()
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
