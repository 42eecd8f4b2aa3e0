package gpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"studko/internal/models"
)

const tutorSystemPrompt = "Si Študko AI, trpezlivý študijný asistent pre slovenských študentov. " +
	"Vysvetľuj stručne a zrozumiteľne, krok za krokom, a odpovedaj v jazyku otázky. " +
	"Ak si nie si istý, povedz to. Neriešiš za študenta celé zadania na hodnotenie, ale vedieš ho k riešeniu."

var ErrEmptyResponse = errors.New("no response from GPT API")

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// NewClientWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.GPT4oMini,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// StreamChat sends the conversation history and calls onDelta for every
// content chunk. It returns the full assistant reply.
func (c *Client) StreamChat(ctx context.Context, history []models.Message, onDelta func(string) error) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: tutorSystemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   1500,
		Temperature: 0.7,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}

	if full.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

// GenerateFlashcards turns study text into count front/back cards.
func (c *Client) GenerateFlashcards(ctx context.Context, subject, text string, count int) ([]models.Flashcard, error) {
	prompt := fmt.Sprintf(
		"Z nasledujúceho študijného materiálu (predmet: %s) vytvor presne %d kartičiek na opakovanie.\n"+
			"Vráť JSON objekt v tvare {\"cards\": [{\"front\": \"otázka\", \"back\": \"odpoveď\"}]}.\n\n%s",
		subject, count, text,
	)

	var out struct {
		Cards []models.Flashcard `json:"cards"`
	}
	if err := c.completeJSON(ctx, prompt, &out); err != nil {
		return nil, err
	}

	cards := make([]models.Flashcard, 0, len(out.Cards))
	for _, card := range out.Cards {
		card.Front = strings.TrimSpace(card.Front)
		card.Back = strings.TrimSpace(card.Back)
		if card.Front == "" || card.Back == "" {
			continue
		}
		cards = append(cards, card)
	}
	if len(cards) == 0 {
		return nil, ErrEmptyResponse
	}
	return cards, nil
}

// GenerateQuiz builds count multiple-choice questions. Questions with an
// out-of-range answer index are dropped.
func (c *Client) GenerateQuiz(ctx context.Context, subject, text string, count int) ([]models.QuizQuestion, error) {
	prompt := fmt.Sprintf(
		"Z nasledujúceho študijného materiálu (predmet: %s) vytvor %d otázok s výberom zo štyroch možností.\n"+
			"Vráť JSON objekt v tvare {\"questions\": [{\"question\": \"...\", \"options\": [\"a\", \"b\", \"c\", \"d\"], "+
			"\"answer_index\": 0, \"explanation\": \"...\"}]}.\n\n%s",
		subject, count, text,
	)

	var out struct {
		Questions []models.QuizQuestion `json:"questions"`
	}
	if err := c.completeJSON(ctx, prompt, &out); err != nil {
		return nil, err
	}

	questions := make([]models.QuizQuestion, 0, len(out.Questions))
	for _, q := range out.Questions {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) < 2 {
			continue
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, ErrEmptyResponse
	}
	return questions, nil
}

func (c *Client) completeJSON(ctx context.Context, prompt string, dst interface{}) error {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Si skúsený pedagóg. Odpovedáš výhradne platným JSON objektom.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   2500,
		Temperature: 0.4,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), dst); err != nil {
		return fmt.Errorf("failed to decode GPT JSON: %w", err)
	}
	return nil
}
