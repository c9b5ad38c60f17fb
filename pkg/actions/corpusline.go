package actions

import (
	"context"
	"fmt"

	"github.com/harun/shinimi/pkg/conversation"
)

// CorpusLine writes one random line of a corpus file into a Context key.
// greet and tellJokes are both CorpusLine actions.
type CorpusLine struct {
	name        string
	description string
	file        string
	key         string
	corpus      LinePicker
}

// NewCorpusLine creates a CorpusLine action.
func NewCorpusLine(name, description, file, key string, corpus LinePicker) *CorpusLine {
	return &CorpusLine{name: name, description: description, file: file, key: key, corpus: corpus}
}

// Definition implements Action.
func (a *CorpusLine) Definition() Definition {
	return Definition{Name: a.name, Description: a.description, Kind: KindTransformer, Writes: []string{a.key}}
}

// Transform implements Transformer.
func (a *CorpusLine) Transform(_ context.Context, req Request) (conversation.Context, error) {
	line, err := a.corpus.Pick(a.file)
	if err != nil {
		return nil, fmt.Errorf("failed to pick from %s: %w", a.file, err)
	}
	req.Context.Set(a.key, line)
	return req.Context, nil
}
