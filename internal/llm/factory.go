package llm

import (
	"context"
	"fmt"
	"log"
	"time"
)

// NewProvider builds the configured provider wrapped as caller → logging → timeout → backend.
func NewProvider(ctx context.Context, cfg Config, timeout time.Duration, logger *log.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithLogging(WithTimeout(base, timeout), logger), nil
}
