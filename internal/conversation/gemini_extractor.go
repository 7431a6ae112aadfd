package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/shifalabs/clinic-receptionist/internal/intake"
)

// unresolvedSentinel is the exact token the model must emit when a field is
// not present in the conversation.
const unresolvedSentinel = "UNRESOLVED"

// GeminiExtractor implements Extractor with Google's Gemini API. Extraction
// runs at temperature zero so the same conversation always resolves to the
// same value.
type GeminiExtractor struct {
	client  *genai.Client
	modelID string
}

// NewGeminiExtractor creates a Gemini-backed extractor.
func NewGeminiExtractor(ctx context.Context, apiKey, modelID string) (*GeminiExtractor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiExtractor{
		client:  client,
		modelID: modelID,
	}, nil
}

// ExtractField asks the model for the target field's value, or the
// unresolved sentinel when the conversation does not contain it.
func (g *GeminiExtractor) ExtractField(ctx context.Context, history []intake.Turn, field intake.Field) (string, error) {
	model := g.client.GenerativeModel(g.modelID)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(64)
	model.SystemInstruction = genai.NewUserContent(genai.Text(extractionInstruction(field)))

	text, err := g.send(ctx, model, history)
	if err != nil {
		return "", err
	}
	if text == "" || strings.EqualFold(text, unresolvedSentinel) {
		return "", ErrUnresolved
	}
	return text, nil
}

// ComposeReply asks the model to rephrase the drafted reply without changing
// its facts. Callers fall back to the draft on any error.
func (g *GeminiExtractor) ComposeReply(ctx context.Context, history []intake.Turn, draft string) (string, error) {
	model := g.client.GenerativeModel(g.modelID)
	model.SetTemperature(0.4)
	model.SetMaxOutputTokens(256)
	model.SystemInstruction = genai.NewUserContent(genai.Text(composeInstruction))

	turns := append(append([]intake.Turn{}, history...), intake.Turn{
		Role:    "patient",
		Content: "Draft reply to rephrase:\n" + draft,
	})
	text, err := g.send(ctx, model, turns)
	if err != nil {
		return "", err
	}
	if text == "" {
		return draft, nil
	}
	return text, nil
}

// Close releases resources held by the underlying client.
func (g *GeminiExtractor) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// send replays the conversation as chat history and returns the model's
// reply text.
func (g *GeminiExtractor) send(ctx context.Context, model *genai.GenerativeModel, history []intake.Turn) (string, error) {
	if len(history) == 0 {
		return "", errors.New("conversation: gemini requires at least one turn")
	}

	cs := model.StartChat()
	for _, turn := range history[:len(history)-1] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(history[len(history)-1].Content))
	if err != nil {
		return "", fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("conversation: gemini returned empty content")
	}

	var out strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func extractionInstruction(field intake.Field) string {
	header := "You extract a single intake field from a clinic booking conversation. " +
		"Patients write in English or Roman Urdu. " +
		"Reply with ONLY the extracted value, no punctuation or explanation. " +
		"If the conversation does not contain the value, reply with exactly " + unresolvedSentinel + "."

	switch field {
	case intake.FieldName:
		return header + "\nField: the patient's full name, e.g. \"Ahmed Khan\"."
	case intake.FieldAge:
		return header + "\nField: the patient's age as a bare number, e.g. \"25\"."
	case intake.FieldPhone:
		return header + "\nField: the patient's Pakistani mobile number, e.g. \"0300-1234567\"."
	case intake.FieldComplaint:
		return header + "\nField: the patient's chief health complaint in a few words, e.g. \"fever\"."
	case intake.FieldDate:
		return header + "\nField: the requested appointment date as YYYY-MM-DD. " +
			"Resolve relative dates (\"tomorrow\", \"kal\", \"aaj\") against the conversation."
	default:
		return header
	}
}

const composeInstruction = "You are a warm, concise receptionist for a medical clinic in Pakistan. " +
	"Rephrase the drafted reply naturally, keeping every fact, time, date, and instruction exactly as drafted. " +
	"Never add medical advice. Keep it short. Reply with the message text only."
