package reply

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the LLM block, read from LLM_* variables.
type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.groq.com/openai/v1"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" default:"llama-3.1-8b-instant"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" split_words:"true" default:"120"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"8s"`
	MaxRetries  int           `envconfig:"MAX_RETRIES" split_words:"true" default:"1"`
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("LLM_MODEL is required"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be within [0,2], got %v", c.Temperature))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("LLM_MAX_RETRIES must be >= 0"))
	}
	return errors.Join(errs...)
}
