package actions

import (
	"context"

	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
)

// TranslateFailure is written to newVersion when a translation cannot be made.
const TranslateFailure = "Sorry, I couldn't translate that. Please try again."

// Translate is the translate action.
type Translate struct {
	languages  LanguageTable
	translator Translator
	logger     zerolog.Logger
}

// NewTranslate creates the translate action.
func NewTranslate(languages LanguageTable, translator Translator, logger zerolog.Logger) *Translate {
	return &Translate{languages: languages, translator: translator, logger: logger}
}

// Definition implements Action.
func (a *Translate) Definition() Definition {
	return Definition{
		Name:        "translate",
		Description: "Translate a phrase into another language",
		Kind:        KindTransformer,
		Entities:    []string{EntityPhrase, EntityLanguage},
		Writes:      []string{KeyNewVersion},
	}
}

// Transform implements Transformer.
func (a *Translate) Transform(ctx context.Context, req Request) (conversation.Context, error) {
	c := req.Context
	phrase, okPhrase := req.Entities.FirstValue(EntityPhrase)
	language, okLanguage := req.Entities.FirstValue(EntityLanguage)
	if !okPhrase || !okLanguage {
		c.Set(KeyNewVersion, TranslateFailure)
		return c, nil
	}

	code, found, err := a.languages.LanguageCode(language)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to read language table")
		c.Set(KeyNewVersion, TranslateFailure)
		return c, nil
	}
	if !found {
		a.logger.Info().Str("language", language).Msg("Language not in table")
		c.Set(KeyNewVersion, TranslateFailure)
		return c, nil
	}

	result, err := a.translator.Translate(ctx, phrase, code)
	if err != nil {
		a.logger.Warn().Err(err).Str("language", code).Msg("Translation failed")
		c.Set(KeyNewVersion, TranslateFailure)
		return c, nil
	}

	c.Set(KeyNewVersion, result.Text)
	return c, nil
}
