// Package translate turns regional-language news text into English.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/cache"
)

const (
	DefaultGoogleURL = "https://translate.googleapis.com/translate_a/single"
	maxInputRunes    = 4000
)

var ErrEmptyTranslation = errors.New("translation came back empty")

type Config struct {
	GoogleURL    string
	Target       string
	OpenAIKey    string
	OpenAIURL    string
	OpenAIModel  string
	Timeout      time.Duration
	CacheTTL     time.Duration
	DisableCache bool
}

// Translator tries the public Google endpoint first and an OpenAI chat model
// second. Successful results are cached.
type Translator struct {
	cfg    Config
	http   *http.Client
	openai *openai.Client
	cache  cache.Store
	log    *zap.Logger
}

func New(cfg Config, store cache.Store, log *zap.Logger) *Translator {
	if cfg.GoogleURL == "" {
		cfg.GoogleURL = DefaultGoogleURL
	}
	if cfg.Target == "" {
		cfg.Target = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = openai.GPT4oMini
	}
	if log == nil {
		log = zap.NewNop()
	}

	t := &Translator{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: store,
		log:   log.With(zap.String("component", "translate")),
	}
	if cfg.OpenAIKey != "" {
		oc := openai.DefaultConfig(cfg.OpenAIKey)
		if cfg.OpenAIURL != "" {
			oc.BaseURL = cfg.OpenAIURL
		}
		t.openai = openai.NewClientWithConfig(oc)
	}
	return t
}

// Translate returns an error only when every backend failed; callers keep
// the original text in that case. Text longer than maxInputRunes is
// translated chunk by chunk and fails as a whole if any chunk fails.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	chunks := splitChunks(text, maxInputRunes)
	if len(chunks) == 1 {
		return t.translateChunk(ctx, chunks[0])
	}

	t.log.Debug("translating in chunks", zap.Int("chunks", len(chunks)))
	out := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		translated, err := t.translateChunk(ctx, chunk)
		if err != nil {
			return "", errors.Wrapf(err, "translate chunk %d of %d", i+1, len(chunks))
		}
		out = append(out, translated)
	}
	return strings.Join(out, " "), nil
}

// splitChunks cuts text into pieces of at most limit runes, breaking at the
// last whitespace inside the window when there is one.
func splitChunks(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func (t *Translator) translateChunk(ctx context.Context, text string) (string, error) {
	key := cache.Key("translate", t.cfg.Target, text)
	if t.cache != nil && !t.cfg.DisableCache {
		if hit, ok, err := t.cache.Get(ctx, key); err == nil && ok {
			t.log.Debug("translation cache hit")
			return hit, nil
		} else if err != nil {
			t.log.Warn("translation cache read failed", zap.Error(err))
		}
	}

	result, err := t.google(ctx, text)
	if err != nil {
		t.log.Warn("google translate failed", zap.Error(err))
		if t.openai == nil {
			return "", err
		}
		result, err = t.viaOpenAI(ctx, text)
		if err != nil {
			t.log.Warn("openai translate failed", zap.Error(err))
			return "", err
		}
	}

	if t.cache != nil && !t.cfg.DisableCache {
		if err := t.cache.Set(ctx, key, result, t.cfg.CacheTTL); err != nil {
			t.log.Warn("translation cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

func (t *Translator) google(ctx context.Context, text string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", t.cfg.Target)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.GoogleURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", errors.Wrap(err, "build google translate request")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "google translate request")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.log.Debug("close google translate body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("google translate returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read google translate response")
	}

	out, err := parseGoogleTranslateResponse(body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

// parseGoogleTranslateResponse reads the nested-array payload of the gtx
// endpoint: [[["translated","source",...],...],...].
func parseGoogleTranslateResponse(body []byte) (string, error) {
	var response []interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "decode google translate response")
	}
	if len(response) == 0 {
		return "", errors.New("empty response from google translate")
	}

	segments, ok := response[0].([]interface{})
	if !ok {
		return "", errors.New("unexpected google translate response format")
	}

	var b strings.Builder
	for _, segment := range segments {
		if parts, ok := segment.([]interface{}); ok && len(parts) > 0 {
			if s, ok := parts[0].(string); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String(), nil
}

func (t *Translator) viaOpenAI(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following Indian regional news text to English.
Keep names of people, places and organisations as they are.
Return only the translation.

Text:
%s`, text)

	resp, err := t.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.cfg.OpenAIModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: 2000,
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices from openai")
	}

	out := SanitizeAIText(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

var (
	bracketNote = regexp.MustCompile(`(?i)[\[(]\s*(note|translator'?s? note|disclaimer)\b[^\])]*[\])]`)
	lineNote    = regexp.MustCompile(`(?im)^\s*(note|disclaimer)\s*:.*$`)
	leadLabel   = regexp.MustCompile(`(?i)^\s*(here is the translation|translation|english)\s*:\s*`)
)

// SanitizeAIText drops the disclaimers and labels chat models like to wrap
// translations in.
func SanitizeAIText(s string) string {
	s = bracketNote.ReplaceAllString(s, "")
	s = lineNote.ReplaceAllString(s, "")
	s = leadLabel.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
