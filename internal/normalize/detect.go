package normalize

import (
	"github.com/abadojack/whatlanggo"
	"github.com/pkg/errors"
)

var ErrUndetected = errors.New("language could not be detected reliably")

// LangDetector is a Detector backed by whatlanggo's trigram model.
type LangDetector struct {
	target whatlanggo.Lang
}

// NewEnglishDetector flags anything that is not English.
func NewEnglishDetector() *LangDetector {
	return &LangDetector{target: whatlanggo.Eng}
}

func (d *LangDetector) Foreign(text string) (bool, error) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return false, ErrUndetected
	}
	return info.Lang != d.target, nil
}
