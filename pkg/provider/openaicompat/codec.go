package openaicompat

import "github.com/knikam3027/jnj/pkg/provider"

// encodeRequest builds the chat completion body for one gateway call.
// askgs always asks for a single, non-streamed choice.
func encodeRequest(req *provider.ProviderRequest) chatRequest {
	out := chatRequest{
		Model:            req.Model,
		Messages:         make([]chatMessage, 0, len(req.Messages)),
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		N:                1,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		User:             req.User,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: &m.Content})
	}
	return out
}

// decodeResponse reads the first choice. A filtered choice (null content)
// yields empty text, which the callers treat as a failed stage.
func decodeResponse(resp *chatResponse) (*provider.ProviderResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, provider.ErrEmptyCompletion
	}
	first := resp.Choices[0]

	out := &provider.ProviderResponse{Model: resp.Model, FinishReason: first.FinishReason}
	if first.Message.Content != nil {
		out.Text = *first.Message.Content
	}
	if u := resp.Usage; u != nil {
		out.Usage = provider.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
	}
	return out, nil
}
