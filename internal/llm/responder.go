// Package llm wraps the OpenAI chat API behind the two narrow capabilities
// the dialogue engine needs: a general free-text responder and a best-effort
// slot extractor. Neither is authoritative for booking state.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rgarzadev/citabot/pkg/logging"
)

const responderSystemPrompt = "Eres un asistente para agendar citas dentales y responder dudas comunes. Responde en español, breve y amable."

// ChatClient is the slice of the OpenAI client the package uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Responder answers messages that are not part of the booking flow.
type Responder struct {
	client ChatClient
	model  string
	logger *logging.Logger
}

// NewResponder builds a responder on the given chat client.
func NewResponder(client ChatClient, model string, logger *logging.Logger) *Responder {
	if client == nil {
		panic("llm: chat client required")
	}
	if model == "" {
		model = "gpt-4o"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{client: client, model: model, logger: logger}
}

// Complete returns a free-text answer to the user's message.
func (r *Responder) Complete(ctx context.Context, userText string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: responderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
