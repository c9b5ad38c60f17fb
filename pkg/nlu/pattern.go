package nlu

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// FallbackReply is sent when no rule matches.
const FallbackReply = "Sorry, I didn't get that. Try asking for the weather, the time, a joke or a translation."

// Rule maps a message pattern to one action and a reply built from the
// resulting Context.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Action  string
	// Entities extracts entity values from the submatches.
	Entities func(match []string) map[string]string
	// Reply builds the text to send from the updated Context. An empty reply
	// sends nothing.
	Reply func(c conversation.Context, entities map[string]string) string
}

// PatternRunner matches messages against an ordered list of rules. The first
// matching rule runs its action and then sends its reply.
type PatternRunner struct {
	rules  []Rule
	exec   Executor
	logger zerolog.Logger
}

// NewPatternRunner creates an engine with the default rules.
func NewPatternRunner(exec Executor, logger zerolog.Logger) *PatternRunner {
	return &PatternRunner{
		rules:  DefaultRules(),
		exec:   exec,
		logger: logger.With().Str("component", "nlu").Str("engine", "pattern").Logger(),
	}
}

// WithRules replaces the rule list.
func (p *PatternRunner) WithRules(rules []Rule) *PatternRunner {
	p.rules = rules
	return p
}

// RunActions implements Runner.
func (p *PatternRunner) RunActions(ctx context.Context, sessionID, text string, c conversation.Context) (conversation.Context, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerNLU, "nlu.pattern.run", attribute.String("session_id", sessionID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	current := c.Clone()
	reply := FallbackReply

	for _, rule := range p.rules {
		match := rule.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		logger.Debug().Str("rule", rule.Name).Str("action", rule.Action).Msg("Rule matched")
		span.SetAttributes(attribute.String("rule", rule.Name))

		values := map[string]string{}
		if rule.Entities != nil {
			values = rule.Entities(match)
		}
		entities := conversation.Entities{}
		for name, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				entities[name] = []conversation.Candidate{{Value: v, Confidence: 1}}
			}
		}

		res, err := p.exec.Execute(ctx, rule.Action, actions.Request{SessionID: sessionID, Context: current, Entities: entities})
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("failed to run action %s: %w", rule.Action, err)
		}
		current = res.Context
		reply = ""
		if rule.Reply != nil {
			reply = rule.Reply(current, values)
		}
		break
	}

	if reply == "" {
		return current, nil
	}
	res, err := p.exec.Execute(ctx, "send", actions.Request{SessionID: sessionID, Context: current, Text: reply})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return res.Context, nil
}

// place captures a trailing "in <place>" or "at <place>".
const place = `(?:\s+(?:in|at|for)\s+([\p{L}][\p{L} .'/_-]*?))?\s*[?!.]*$`

// DefaultRules returns the built-in English rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "translate",
			Pattern: regexp.MustCompile(`(?i)^\s*(?:how do you say|translate)\s+["']?(.+?)["']?\s+(?:in|into|to)\s+([\p{L}-]+)\s*[?!.]*$`),
			Action:  "translate",
			Entities: func(m []string) map[string]string {
				return map[string]string{actions.EntityPhrase: m[1], actions.EntityLanguage: m[2]}
			},
			Reply: func(c conversation.Context, _ map[string]string) string {
				translated, _ := c.String(actions.KeyNewVersion)
				return translated
			},
		},
		{
			Name:    "forecast",
			Pattern: regexp.MustCompile(`(?i)\b(?:weather|forecast|temperature)\b.*?` + place),
			Action:  "getForecast",
			Entities: func(m []string) map[string]string {
				return map[string]string{actions.EntityLocation: m[1]}
			},
			Reply: func(c conversation.Context, _ map[string]string) string {
				if missing, _ := c.Bool(actions.KeyMissingLocation); missing {
					return "Where would you like the forecast for?"
				}
				forecast, _ := c.String(actions.KeyForecast)
				return forecast
			},
		},
		{
			Name:    "time",
			Pattern: regexp.MustCompile(`(?i)\btime\b.*?` + place),
			Action:  "getCurrentTime",
			Entities: func(m []string) map[string]string {
				return map[string]string{actions.EntityLocation: m[1]}
			},
			Reply: func(c conversation.Context, values map[string]string) string {
				if missing, _ := c.Bool(actions.KeyMissingTimeZone); missing {
					return "Which city or time zone do you mean?"
				}
				current, _ := c.String(actions.KeyCurrentTime)
				return fmt.Sprintf("It's %s in %s.", current, strings.TrimSpace(values[actions.EntityLocation]))
			},
		},
		{
			Name:    "joke",
			Pattern: regexp.MustCompile(`(?i)\b(?:joke|jokes|funny)\b`),
			Action:  "tellJokes",
			Reply: func(c conversation.Context, _ map[string]string) string {
				joke, _ := c.String(actions.KeyJokes)
				return joke
			},
		},
		{
			Name:    "greet",
			Pattern: regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|howdy|yo|good (?:morning|afternoon|evening))\b`),
			Action:  "greet",
			Reply: func(c conversation.Context, _ map[string]string) string {
				greeting, _ := c.String(actions.KeyGreetings)
				return greeting
			},
		},
	}
}
