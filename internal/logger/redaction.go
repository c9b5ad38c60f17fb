package logger

import (
	"io"
	"regexp"
)

// Redactor redacts tokens and secrets from log output
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Graph API page access tokens
			regexp.MustCompile(`EAA[A-Za-z0-9]{20,}`),

			// Credentials carried in query strings (Send API, weather, translation)
			regexp.MustCompile(`(access_token|appid|key)=[^&\s"]+`),

			// LLM provider keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens (Wit.ai and LLM providers)
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Webhook signatures
			regexp.MustCompile(`sha(1|256)=[a-f0-9]{40,64}`),

			// Named secrets in structured fields
			regexp.MustCompile(`(app_secret|verify_token|page_token)["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`secret["\s:=]+[^\s",}]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
