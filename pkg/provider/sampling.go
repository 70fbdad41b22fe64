package provider

// Sampling holds the generation parameters shared by every stage that
// calls the gateway.
type Sampling struct {
	Temperature      float64  `yaml:"temperature"`
	TopP             float64  `yaml:"top_p"`
	FrequencyPenalty float64  `yaml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty"`
	MaxTokens        int      `yaml:"max_tokens"`
	Stop             []string `yaml:"stop"`
}

// DefaultSampling returns low-temperature settings suited to
// classification and rewriting.
func DefaultSampling() Sampling {
	return Sampling{
		Temperature: 0.1,
		TopP:        1,
		MaxTokens:   600,
	}
}

// Apply copies the sampling values onto req.
func (s Sampling) Apply(req *ProviderRequest) {
	temp, topP := s.Temperature, s.TopP
	freq, pres := s.FrequencyPenalty, s.PresencePenalty
	req.Temperature = &temp
	req.TopP = &topP
	req.FrequencyPenalty = &freq
	req.PresencePenalty = &pres
	if s.MaxTokens > 0 {
		maxTokens := s.MaxTokens
		req.MaxTokens = &maxTokens
	}
	if len(s.Stop) > 0 {
		req.Stop = append([]string(nil), s.Stop...)
	}
}
