package openai

import (
	"simulator-backend/internal/llm"
)

const (
	systemPrompt        = "You are a screen activity analysis engine. Respond with JSON only. No markdown. Never omit keys."
	systemPromptFixJSON = "You are a JSON repair tool. Return only valid JSON that matches the requested keys exactly."

	imageDetail = "low"
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// buildMessages creates the chat messages for one capture window: the rendered
// instructions followed by one image part per screenshot, in order.
func buildMessages(input llm.ScreenshotInput) []chatMessage {
	version := input.PromptVersion
	if version == "" {
		version = llm.DefaultPromptVersion
	}
	parts := make([]contentPart, 0, len(input.URLs)+1)
	parts = append(parts, contentPart{Type: "text", Text: llm.RenderPrompt(version, input)})
	for _, u := range input.URLs {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u, Detail: imageDetail}})
	}
	return []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: parts},
	}
}

func buildFixMessages(input llm.ScreenshotInput, raw []byte) []chatMessage {
	version := input.PromptVersion
	if version == "" {
		version = llm.DefaultPromptVersion
	}
	return []chatMessage{
		{Role: "system", Content: systemPromptFixJSON},
		{Role: "user", Content: llm.RenderPrompt(version, input) + "\n\nRepair this output into valid JSON:\n" + string(raw)},
	}
}
