package llm

import (
	"context"
	"log"
	"time"
)

// LoggingProvider logs one line per call with model, purpose, latency and outcome.
type LoggingProvider struct {
	inner  Provider
	logger *log.Logger
}

// WithLogging wraps a Provider with call logging. A nil logger uses the standard logger.
func WithLogging(p Provider, logger *log.Logger) Provider {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingProvider{inner: p, logger: logger}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		l.logger.Printf("llm call failed model=%s purpose=%s latency_ms=%d err=%v",
			l.inner.ModelID(), PurposeFrom(ctx), latency, err)
		return nil, err
	}
	l.logger.Printf("llm call ok model=%s purpose=%s latency_ms=%d input_tokens=%d output_tokens=%d",
		resp.Model, PurposeFrom(ctx), latency, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}
