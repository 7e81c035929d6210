// Package generator produces the visitor-facing prompt for each flow step.
// Backends range from static templates to generative models; they are
// combined with Failback so a model outage degrades to the script.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
)

// ErrEmptyResponse is returned when a model yields no text.
var ErrEmptyResponse = errors.New("generator: empty response")

// Generator produces the prompt for step.
type Generator interface {
	Generate(ctx context.Context, step domain.Step, answers domain.Answers) (string, error)
}

// Pinger is implemented by backends that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Failback tries each generator in order and returns the first success.
type Failback struct {
	generators []Generator
}

// NewFailback builds a Failback chain.
func NewFailback(generators ...Generator) *Failback {
	return &Failback{generators: generators}
}

// Generate implements Generator. When ctx has a deadline, every generator
// but the last gets half of the time remaining, so a hung model still
// leaves room for the next one.
func (g *Failback) Generate(ctx context.Context, step domain.Step, answers domain.Answers) (string, error) {
	lastErr := errors.New("no generators configured")
	for i, gen := range g.generators {
		genCtx, cancel := stepContext(ctx, i == len(g.generators)-1)
		text, err := gen.Generate(genCtx, step, answers)
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = ErrEmptyResponse
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all generators failed: %w", lastErr)
}

func stepContext(ctx context.Context, last bool) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if last || !ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Until(deadline)/2)
}

// Ping reports the first generator that supports health checks. The chain
// is healthy when that primary backend is.
func (g *Failback) Ping(ctx context.Context) error {
	for _, gen := range g.generators {
		if p, ok := gen.(Pinger); ok {
			return p.Ping(ctx)
		}
	}
	return nil
}

// instruction is the system prompt shared by the model backends. The
// scripted prompt is passed along so the model rephrases rather than invents.
func instruction(step domain.Step) string {
	return "Você é o assistente virtual do escritório m.lima Advogados Associados, especializado em " +
		"Direito Penal e Direito da Saúde. Reescreva a mensagem roteirizada abaixo em português do Brasil, " +
		"mantendo o mesmo objetivo, de forma cordial, profissional e breve. Não dê conselhos jurídicos, " +
		"não invente fatos e termine com a mesma pergunta da mensagem roteirizada. Etapa atual: " + string(step) + "."
}

func userMessage(script string, answers domain.Answers) string {
	var sb strings.Builder
	sb.WriteString("Mensagem roteirizada:\n")
	sb.WriteString(script)
	if len(answers) > 0 {
		sb.WriteString("\n\nRespostas já coletadas:\n")
		for _, k := range domain.RequiredAnswers {
			if v := strings.TrimSpace(answers[k]); v != "" {
				fmt.Fprintf(&sb, "- %s: %s\n", k, v)
			}
		}
	}
	return sb.String()
}
