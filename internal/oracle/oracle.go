// Package oracle wraps the text-generation services used to classify and
// summarize articles behind one interface.
package oracle

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Request is a single prompt for a text-generation service.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// TextOracle answers a prompt with free text.
type TextOracle interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

var ErrEmptyResponse = errors.New("oracle returned an empty response")

const (
	VendorGemini   = "gemini"
	VendorOpenAI   = "openai"
	VendorTogether = "together"
	VendorCohere   = "cohere"

	TogetherBaseURL = "https://api.together.xyz/v1"
)

var defaultModels = map[string]string{
	VendorGemini:   "gemini-1.5-flash",
	VendorOpenAI:   "gpt-4o-mini",
	VendorTogether: "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free",
	VendorCohere:   "command-r",
}

type Config struct {
	Vendor  string
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// New builds the oracle named by cfg.Vendor.
func New(ctx context.Context, cfg Config) (TextOracle, error) {
	vendor := strings.ToLower(strings.TrimSpace(cfg.Vendor))
	if cfg.Model == "" {
		cfg.Model = defaultModels[vendor]
	}
	if cfg.APIKey == "" {
		return nil, errors.Errorf("no api key configured for oracle vendor %q", vendor)
	}

	switch vendor {
	case VendorGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case VendorOpenAI:
		return NewOpenAI(VendorOpenAI, cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case VendorTogether:
		base := cfg.BaseURL
		if base == "" {
			base = TogetherBaseURL
		}
		return NewOpenAI(VendorTogether, cfg.APIKey, base, cfg.Model), nil
	case VendorCohere:
		return NewCohere(cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, errors.Errorf("unknown oracle vendor %q", cfg.Vendor)
	}
}

// Close releases the vendor client if it holds one.
func Close(o TextOracle) error {
	if c, ok := o.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
