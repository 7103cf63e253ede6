package openai

import "github.com/samk-ai/voiceflow/core/llms"

const (
	defaultModel = "gpt-4o-mini"
	url          = "https://api.openai.com/v1/chat/completions"
)

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

// toMessages converts the persona preamble and the ordered transcript into
// chat messages. Cancelled assistant turns keep whatever content was spoken
// before the cut so the model knows what the caller actually heard.
func toMessages(instructions string, turns []llms.Turn) []message {
	messages := make([]message, 0, len(turns)+1)
	if instructions != "" {
		messages = append(messages, message{Role: messageRoleSystem, Content: instructions})
	}

	for _, turn := range turns {
		role := messageRoleUser
		if turn.Role == llms.RoleAssistant {
			role = messageRoleAssistant
		}
		if turn.Content == "" {
			continue
		}
		messages = append(messages, message{Role: role, Content: turn.Content})
	}

	return messages
}

type requestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	Stream         bool                `json:"stream"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}
