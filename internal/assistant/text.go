package assistant

import (
	"regexp"
	"slices"
	"strings"
)

// Emotions are the 28 GoEmotions labels.
var Emotions = []string{
	"admiration", "amusement", "anger", "annoyance", "approval", "caring",
	"confusion", "curiosity", "desire", "disappointment", "disapproval", "disgust",
	"embarrassment", "excitement", "fear", "gratitude", "grief", "joy",
	"love", "nervousness", "optimism", "pride", "realization", "relief",
	"remorse", "sadness", "surprise", "neutral",
}

// emotionAliases maps common near-misses onto a GoEmotions label.
var emotionAliases = map[string]string{
	"uncertainty": "confusion",
	"happiness":   "joy",
	"anxiety":     "nervousness",
	"worry":       "nervousness",
	"frustration": "annoyance",
	"thankful":    "gratitude",
	"hope":        "optimism",
	"sorrow":      "sadness",
}

// MaxEmotions caps the labels stored per entry.
const MaxEmotions = 5

// NormalizeEmotion maps a label onto GoEmotions, defaulting to neutral.
func NormalizeEmotion(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if slices.Contains(Emotions, label) {
		return label
	}
	if mapped, ok := emotionAliases[label]; ok {
		return mapped
	}
	return "neutral"
}

// NormalizeEmotions maps, deduplicates and caps labels, keeping first-seen order.
func NormalizeEmotions(labels []string) []string {
	out := make([]string, 0, MaxEmotions)
	for _, l := range labels {
		e := NormalizeEmotion(l)
		if slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
		if len(out) == MaxEmotions {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, "neutral")
	}
	return out
}

// Therapist modes.
const (
	ModeSupportive          = "supportive"
	ModeCognitiveBehavioral = "cognitive-behavioral"
	ModeMindfulness         = "mindfulness"
	ModeSolutionFocused     = "solution-focused"
)

// Modes lists every accepted therapist mode.
var Modes = []string{ModeSupportive, ModeCognitiveBehavioral, ModeMindfulness, ModeSolutionFocused}

// NormalizeMode returns mode when known, else ModeSupportive.
func NormalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if slices.Contains(Modes, mode) {
		return mode
	}
	return ModeSupportive
}

var (
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	underlineRe = regexp.MustCompile(`__([^_]+)__`)
)

// StripEmphasis removes **bold** and __underline__ markers.
func StripEmphasis(s string) string {
	s = boldRe.ReplaceAllString(s, "$1")
	return underlineRe.ReplaceAllString(s, "$1")
}

// ExtractJSON returns the text from the first '{' to the last '}'.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
