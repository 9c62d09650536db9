package reply

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"survey-dialer/internal/conversation"
)

const (
	DefaultMaxTokens   = 120
	DefaultTemperature = 0.7
	DefaultFallback    = "Sorry, I am having trouble right now. We will contact you again later."
)

var ErrEmptyReply = errors.New("reply: provider returned empty text")

// Provider produces one completion for an ordered message list.
type Provider interface {
	Complete(ctx context.Context, messages []conversation.Turn, maxTokens int, temperature float64) (string, error)
}

type GeneratorOptions struct {
	MaxTokens   int
	Temperature float64
	Fallback    string
	Timeout     time.Duration
	MaxTurns    int
	Logger      *slog.Logger
}

// Generator turns a call history into the assistant's next line. It never fails:
// provider errors become the fallback text.
type Generator struct {
	provider    Provider
	maxTokens   int
	temperature float64
	fallback    string
	timeout     time.Duration
	maxTurns    int
	log         *slog.Logger
}

func NewGenerator(p Provider, opts GeneratorOptions) *Generator {
	g := &Generator{
		provider:    p,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		fallback:    opts.Fallback,
		timeout:     opts.Timeout,
		maxTurns:    opts.MaxTurns,
		log:         opts.Logger,
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	if g.temperature < 0 {
		g.temperature = DefaultTemperature
	}
	if strings.TrimSpace(g.fallback) == "" {
		g.fallback = DefaultFallback
	}
	if g.maxTurns == 0 {
		g.maxTurns = conversation.DefaultMaxTurns
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

func (g *Generator) Generate(ctx context.Context, history []conversation.Turn) string {
	msgs := conversation.Trim(append([]conversation.Turn(nil), history...), g.maxTurns)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.provider.Complete(ctx, msgs, g.maxTokens, g.temperature)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		g.log.Warn("reply generation failed, using fallback",
			"err", err,
			"turns", len(msgs),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return g.fallback
	}
	return strings.TrimSpace(text)
}
