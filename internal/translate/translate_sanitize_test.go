package translate

import (
	"strings"
	"testing"
)

func TestSanitizeAIText_RemovesInlineParenthesizedDisclaimer(t *testing.T) {
	in := "Farmers protest in Guntur\n(Note: This translation is a machine translation and may contain errors. Always double-check with a reliable source for accurate translations.) Protests continue across the district."
	out := SanitizeAIText(in)
	if out == "" {
		t.Fatalf("got empty output")
	}
	if strings.Contains(strings.ToLower(out), "note:") {
		t.Errorf("output still contains 'Note:' disclaimer: %q", out)
	}
	if !strings.Contains(out, "Protests continue across the district.") {
		t.Errorf("expected content preserved after disclaimer removal, got: %q", out)
	}
}

func TestSanitizeAIText_RemovesFullLineNote(t *testing.T) {
	in := "Note: This translation is a machine translation and may contain errors.\nProtests continue in Kurnool."
	out := SanitizeAIText(in)
	if strings.Contains(strings.ToLower(out), "note:") {
		t.Errorf("disclaimer line was not removed: %q", out)
	}
	if out != "Protests continue in Kurnool." {
		t.Errorf("expected content line to remain, got %q", out)
	}
}

func TestSanitizeAIText_RemovesBracketedDisclaimer(t *testing.T) {
	in := "[Note: Machine translation] This is a test line."
	out := SanitizeAIText(in)
	if strings.Contains(strings.ToLower(out), "note") {
		t.Errorf("bracketed disclaimer was not removed: %q", out)
	}
	if want := "This is a test line."; out != want {
		t.Errorf("want %q, got %q", want, out)
	}
}

func TestSanitizeAIText_RemovesLeadingLabel(t *testing.T) {
	if out := SanitizeAIText("Translation: Water shortage in Anantapur"); out != "Water shortage in Anantapur" {
		t.Errorf("label not stripped: %q", out)
	}
}
