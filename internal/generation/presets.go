// Package generation holds the local language model backend and the model
// presets shared by every generation provider.
package generation

import "strings"

// Preset carries runtime and sampling settings tuned for a model family.
type Preset struct {
	ContextWindow int
	Threads       int
	Temperature   float64
	TopP          float64
	MaxTokens     int
}

// CPUPreset is used for models without a dedicated preset. It keeps the
// context small enough for CPU-only hosts.
var CPUPreset = Preset{
	ContextWindow: 2048,
	Threads:       4,
	Temperature:   0.3,
	TopP:          0.9,
	MaxTokens:     512,
}

// presets are keyed by model name prefix. The longest matching prefix wins.
var presets = map[string]Preset{
	"llama3.2":     {ContextWindow: 4096, Threads: 6, Temperature: 0.3, TopP: 0.9, MaxTokens: 768},
	"llama3.2:1b":  {ContextWindow: 2048, Threads: 4, Temperature: 0.2, TopP: 0.9, MaxTokens: 512},
	"llama3.1":     {ContextWindow: 8192, Threads: 8, Temperature: 0.3, TopP: 0.9, MaxTokens: 1024},
	"qwen2.5":      {ContextWindow: 4096, Threads: 6, Temperature: 0.3, TopP: 0.85, MaxTokens: 768},
	"mistral":      {ContextWindow: 4096, Threads: 6, Temperature: 0.4, TopP: 0.9, MaxTokens: 768},
	"phi3":         {ContextWindow: 2048, Threads: 4, Temperature: 0.2, TopP: 0.9, MaxTokens: 512},
	"gemma2":       {ContextWindow: 4096, Threads: 6, Temperature: 0.3, TopP: 0.9, MaxTokens: 768},
	"gpt-4o-mini":  {ContextWindow: 128000, Temperature: 0.3, TopP: 1.0, MaxTokens: 1024},
	"gpt-4o":       {ContextWindow: 128000, Temperature: 0.3, TopP: 1.0, MaxTokens: 1500},
	"gpt-4.1-mini": {ContextWindow: 128000, Temperature: 0.3, TopP: 1.0, MaxTokens: 1024},
}

// PresetFor returns the preset whose prefix best matches model, falling back
// to CPUPreset.
func PresetFor(model string) Preset {
	model = strings.ToLower(model)
	best := ""
	for prefix := range presets {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return CPUPreset
	}
	return presets[best]
}

// SamplingParams are per-call generation settings. Zero fields fall back to
// the model preset.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Sampling returns the preset's sampling settings overridden by the non-zero
// fields of p.
func (pr Preset) Sampling(p SamplingParams) SamplingParams {
	out := SamplingParams{Temperature: pr.Temperature, TopP: pr.TopP, MaxTokens: pr.MaxTokens}
	if p.Temperature > 0 {
		out.Temperature = p.Temperature
	}
	if p.TopP > 0 {
		out.TopP = p.TopP
	}
	if p.MaxTokens > 0 {
		out.MaxTokens = p.MaxTokens
	}
	return out
}
