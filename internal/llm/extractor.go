package llm

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rgarzadev/citabot/pkg/logging"
)

const extractorSystemPrompt = `Extrae datos de una conversación para agendar una cita dental.
Devuelve únicamente JSON con esta forma exacta:
{"name": string|null, "service": string|null, "date_text": string|null}
- "name": nombre completo del paciente si lo mencionó.
- "service": servicio solicitado (limpieza, revisión, etc.) si lo mencionó.
- "date_text": la frase de fecha/hora tal como la escribió el usuario, sin interpretarla.
Usa null para todo dato que no aparezca. No inventes valores.`

// Slots is the extractor's best guess at the booking fields. Nil means the
// transcript did not mention the field. Never authoritative: the engine only
// fills gaps with these, it never overwrites confirmed state.
type Slots struct {
	Name     *string `json:"name"`
	Service  *string `json:"service"`
	DateText *string `json:"date_text"`
}

// Empty reports whether the extractor found nothing.
func (s Slots) Empty() bool {
	return s.Name == nil && s.Service == nil && s.DateText == nil
}

// Extractor pulls booking slots out of a short transcript.
type Extractor struct {
	client ChatClient
	model  string
	logger *logging.Logger
}

// NewExtractor builds a slot extractor on the given chat client.
func NewExtractor(client ChatClient, model string, logger *logging.Logger) *Extractor {
	if client == nil {
		panic("llm: chat client required")
	}
	if model == "" {
		model = "gpt-4o"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{client: client, model: model, logger: logger}
}

// ExtractSlots runs a temperature-zero extraction over the transcript.
// Any failure, transport or malformed output, degrades to all-null slots;
// the step-by-step flow never depends on extraction succeeding.
func (e *Extractor) ExtractSlots(ctx context.Context, transcript string) Slots {
	if strings.TrimSpace(transcript) == "" {
		return Slots{}
	}
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		e.logger.Debug("slot extraction failed", "error", err)
		return Slots{}
	}
	if len(resp.Choices) == 0 {
		return Slots{}
	}

	var slots Slots
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		e.logger.Debug("slot extraction returned malformed JSON", "error", err)
		return Slots{}
	}
	return normalize(slots)
}

// normalize drops empty or whitespace-only values so callers only see nil
// or a usable string.
func normalize(s Slots) Slots {
	clean := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		if v == "" || strings.EqualFold(v, "null") {
			return nil
		}
		return &v
	}
	return Slots{Name: clean(s.Name), Service: clean(s.Service), DateText: clean(s.DateText)}
}
