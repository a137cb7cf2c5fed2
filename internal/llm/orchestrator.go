package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/devlens/internal/observability"
)

// Orchestrator tries the primary provider, falls back to the secondary on
// any failure, and records provider-attempt and fallback metrics so
// degraded summary quality is visible in dashboards without surfacing as a
// user-facing error.
type Orchestrator struct {
	primary  SummaryProvider
	fallback SummaryProvider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewOrchestrator(primary, fallback SummaryProvider, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{primary: primary, fallback: fallback, timeout: timeout, logger: logger}
}

// Summarize returns the completion text and the name of the provider that
// produced it, or ("", "") if both providers are unavailable/failed —
// callers fall back to the deterministic template in that case.
func (o *Orchestrator) Summarize(ctx context.Context, prompt string) (text, providerName string) {
	if o.primary != nil {
		text, err := o.primary.Complete(ctx, prompt, o.timeout)
		if err == nil {
			observability.LLMProviderAttempts.WithLabelValues(o.primary.Name(), "success").Inc()
			return text, o.primary.Name()
		}
		observability.LLMProviderAttempts.WithLabelValues(o.primary.Name(), "error").Inc()
		if o.logger != nil {
			o.logger.Warn("summary provider failed, falling back", "provider", o.primary.Name(), "error", err)
		}
	}

	if o.fallback != nil {
		fallbackFrom := "none"
		if o.primary != nil {
			fallbackFrom = o.primary.Name()
			observability.LLMFallbacks.WithLabelValues(fallbackFrom, o.fallback.Name()).Inc()
		}
		text, err := o.fallback.Complete(ctx, prompt, o.timeout)
		if err == nil {
			observability.LLMProviderAttempts.WithLabelValues(o.fallback.Name(), "success").Inc()
			return text, o.fallback.Name()
		}
		observability.LLMProviderAttempts.WithLabelValues(o.fallback.Name(), "error").Inc()
		if o.logger != nil {
			o.logger.Warn("fallback summary provider failed", "provider", o.fallback.Name(), "error", err)
		}
	}

	return "", ""
}
