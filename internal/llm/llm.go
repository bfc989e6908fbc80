// Package llm adapts one OpenAI-compatible endpoint into the three
// collaborators the core consumes: embedding, text generation, and
// question validation/answer evaluation. All calls are opaque, potentially
// slow network calls and honor context cancellation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"examtrainer/internal/llm/prompts"
	"examtrainer/internal/model"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
}

// New creates a new LLM client.
func New(baseURL, apiKey, chatModel, embedModel string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:        openai.NewClientWithConfig(config),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

// Ping verifies the endpoint is reachable and the model responds.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.chatModel,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	return nil
}

// Embed returns the embedding vector for a text. Vectors from one embed
// model are dimensionally consistent, which the index relies on.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API call: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// Generate produces a novel question. With supporting context the prompt
// grounds the question in retrieved past-exam material; without it the
// model generates from the exam name alone.
func (c *Client) Generate(ctx context.Context, examName, supportingContext string) (string, error) {
	prompt := prompts.Generation(examName, supportingContext)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.GeneratorSystem(examName)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("generation API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Validate asks the review model whether a generated question is usable:
// self-contained, answerable, and consistent with the supporting context.
func (c *Client) Validate(ctx context.Context, questionText, supportingContext string) (model.Validation, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.ValidatorSystem()},
			{Role: openai.ChatMessageRoleUser, Content: prompts.Validation(questionText, supportingContext)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return model.Validation{}, fmt.Errorf("validation API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Validation{}, fmt.Errorf("validation returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("validation response", "raw", raw)

	var v model.Validation
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return model.Validation{}, fmt.Errorf("parse validation response: %w (raw: %s)", err, raw)
	}
	return v, nil
}

// evalOutput is the raw evaluation response before mapping to the model
// type.
type evalOutput struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// EvaluateAnswer judges a learner's answer against the question and its
// answer key (which may be empty for questions extracted without one).
func (c *Client) EvaluateAnswer(ctx context.Context, questionText, answerKey, userAnswer string) (model.Evaluation, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.EvaluatorSystem()},
			{Role: openai.ChatMessageRoleUser, Content: prompts.Evaluation(questionText, answerKey, userAnswer)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluation API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Evaluation{}, fmt.Errorf("evaluation returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	var out evalOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return model.Evaluation{}, fmt.Errorf("parse evaluation response: %w (raw: %s)", err, raw)
	}
	return model.Evaluation{Correct: out.Correct, Feedback: out.Feedback}, nil
}
