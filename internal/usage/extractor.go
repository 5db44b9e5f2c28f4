// Package usage normalizes provider response bodies into token counts
// and converts them to cost.
//
// DESIGN: Each provider declares gjson paths for its usage fields
// (Anthropic: usage.input_tokens / usage.output_tokens; OpenAI:
// usage.prompt_tokens / usage.completion_tokens). Extraction failure is
// never an error for the caller: metering is skipped and the response is
// returned anyway — the platform's bookkeeping degrades, the request
// does not.
package usage

import "github.com/tidwall/gjson"

// Fields holds gjson paths into a provider response body.
type Fields struct {
	Input  string // path to the input/prompt token count
	Output string // path to the output/completion token count
	Model  string // path to the model identifier
}

// Usage is the normalized result of one successful upstream call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Model        string
}

// Total returns input + output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Extract parses a provider response body using the provider's field
// paths. ok is false when the body is not valid JSON or carries no token
// counts at the configured paths.
func Extract(f Fields, body []byte) (Usage, bool) {
	if f.Input == "" && f.Output == "" {
		return Usage{}, false
	}
	if !gjson.ValidBytes(body) {
		return Usage{}, false
	}

	in := gjson.GetBytes(body, f.Input)
	out := gjson.GetBytes(body, f.Output)
	if !in.Exists() && !out.Exists() {
		return Usage{}, false
	}

	u := Usage{
		InputTokens:  int(in.Int()),
		OutputTokens: int(out.Int()),
	}
	if f.Model != "" {
		u.Model = gjson.GetBytes(body, f.Model).String()
	}
	return u, true
}
