// Package corpus reads the line-delimited text resources the bot replies from.
// Files are read on every call so edits take effect without a restart.
package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

// Corpus file names
const (
	Greetings = "greetings.txt"
	Jokes     = "jokes.txt"
	Languages = "languages.txt"
)

// ErrEmpty is returned when a corpus file has no usable lines
var ErrEmpty = errors.New("corpus is empty")

// Corpus reads text resources from a directory
type Corpus struct {
	dir  string
	intN func(n int) int
}

// Option configures a Corpus
type Option func(*Corpus)

// WithRand replaces the uniform index source used by Pick
func WithRand(intN func(n int) int) Option {
	return func(c *Corpus) {
		if intN != nil {
			c.intN = intN
		}
	}
}

// New returns a Corpus rooted at dir
func New(dir string, opts ...Option) *Corpus {
	c := &Corpus{
		dir:  dir,
		intN: rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the corpus directory
func (c *Corpus) Dir() string {
	return c.dir
}

// Lines returns the non-blank lines of name with surrounding whitespace removed
func (c *Corpus) Lines(name string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", name, err)
	}

	raw := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Pick returns one line of name chosen uniformly at random
func (c *Corpus) Pick(name string) (string, error) {
	lines, err := c.Lines(name)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	return lines[c.intN(len(lines))], nil
}

// LanguageCode looks up a language in the languages table. Lines have the
// form "name,code"; the name match is case-insensitive and a bare code is
// accepted as well.
func (c *Corpus) LanguageCode(language string) (string, bool, error) {
	lines, err := c.Lines(Languages)
	if err != nil {
		return "", false, err
	}

	want := strings.ToLower(strings.TrimSpace(language))
	if want == "" {
		return "", false, nil
	}

	for _, line := range lines {
		name, code, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if name == want || strings.ToLower(code) == want {
			return code, true, nil
		}
	}
	return "", false, nil
}
