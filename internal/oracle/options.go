// Package oracle requests proof continuations from a chat-completion model.
package oracle

// Options are the sampling parameters sent with every completion request.
type Options struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultOptions returns the sampling parameters used when none are configured.
func DefaultOptions() Options {
	return Options{
		Model:       "gpt-4",
		Temperature: 0.4,
		TopP:        0.95,
		MaxTokens:   2048,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	return o
}
