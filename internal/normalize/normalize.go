// Package normalize cleans and translates article text before it is stored.
package normalize

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	invisibleMarks = regexp.MustCompile("[\u200b\u200c\u200d\ufeff]")
	breakChars     = regexp.MustCompile(`[\t\n\v\f\r\x{85}]+`)
	controlChars   = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)
	longEllipsis   = regexp.MustCompile(`\.{3,}`)
	whitespaceRun  = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Clean strips invisible and control characters, shortens ellipses and
// collapses whitespace. Line breaks and tabs become spaces.
// Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = invisibleMarks.ReplaceAllString(text, "")
	text = breakChars.ReplaceAllString(text, " ")
	text = controlChars.ReplaceAllString(text, "")
	text = longEllipsis.ReplaceAllString(text, "...")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Detector reports whether text is written in something other than the
// target language.
type Detector interface {
	Foreign(text string) (bool, error)
}

// Translator turns text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type Normalizer struct {
	detector   Detector
	translator Translator
	log        *zap.Logger
}

func New(detector Detector, translator Translator, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{
		detector:   detector,
		translator: translator,
		log:        log.With(zap.String("component", "normalize")),
	}
}

// DetectForeign fails open: an undetectable text counts as target language.
func (n *Normalizer) DetectForeign(text string) bool {
	if n.detector == nil || strings.TrimSpace(text) == "" {
		return false
	}
	foreign, err := n.detector.Foreign(text)
	if err != nil {
		n.log.Debug("language detection failed", zap.Error(err))
		return false
	}
	return foreign
}

// Translate never fails; the input comes back unchanged when translation does.
func (n *Normalizer) Translate(ctx context.Context, text string) string {
	if n.translator == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := n.translator.Translate(ctx, text)
	if err != nil || strings.TrimSpace(out) == "" {
		n.log.Warn("translation failed, keeping original", zap.Error(err))
		return text
	}
	return out
}

// Normalize translates foreign text and then cleans it.
func (n *Normalizer) Normalize(ctx context.Context, text string) string {
	if n.DetectForeign(text) {
		text = n.Translate(ctx, text)
	}
	return Clean(text)
}
