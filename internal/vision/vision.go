package vision

import (
	"context"
	"errors"
	"strings"
)

// ConfidenceHigh is reported for every verdict. It is a fixed label and is
// not derived from the model output.
const ConfidenceHigh = "high"

// PizzaInstruction constrains the model to a one word answer.
const PizzaInstruction = "This image is going to be analyzed by a 'Is it Pizza?' app. " +
	"Your ONLY job is to determine if the image contains pizza. " +
	"Respond with ONLY 'yes' if the image contains pizza, or 'no' if it does not contain pizza. " +
	"No explanation, just 'yes' or 'no'."

// ErrMissingCredential is returned at request time when no API key was configured.
var ErrMissingCredential = errors.New("vision model credential is not configured")

// Prompt is a single user turn: instruction text plus one image reference.
type Prompt struct {
	Text        string
	ImageURL    string
	MaxTokens   int
	Temperature float32
}

// Model exposes the subset of a vision-language model used by the classifier.
type Model interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Verdict is the parsed answer.
type Verdict struct {
	IsPizza    bool   `json:"isPizza"`
	Confidence string `json:"confidence"`
}

// ParseVerdict trims and lowercases the answer and looks for "yes" anywhere
// in it. Refusals, empty output and everything else count as "no".
// The match is a substring test, so "yesterday" is a yes.
func ParseVerdict(answer string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	return Verdict{
		IsPizza:    strings.Contains(normalized, "yes"),
		Confidence: ConfidenceHigh,
	}
}
