package service

import (
	"context"

	"docqa/internal/generation"
	"docqa/internal/metrics"
)

// instrumentedProvider counts generation calls by outcome.
type instrumentedProvider struct {
	next    generation.Provider
	metrics *metrics.Collector
}

func instrument(p generation.Provider, m *metrics.Collector) generation.Provider {
	if m == nil {
		return p
	}
	return &instrumentedProvider{next: p, metrics: m}
}

func (p *instrumentedProvider) Generate(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	out, err := p.next.Generate(ctx, prompt, opts)
	p.metrics.RecordProviderCall("generate", err)
	return out, err
}

func (p *instrumentedProvider) Available(ctx context.Context) bool {
	return p.next.Available(ctx)
}
