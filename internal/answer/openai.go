package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const systemPrompt = `You help a job candidate during a live interview.
Given the interviewer's question, reply with a JSON object only:
{"sampleAnswer": string, "keyPoints": [string], "structureTips": string}
Keep sampleAnswer under 120 words, spoken in first person. Give 3 to 5 keyPoints.`

// OpenAIGenerator asks an OpenAI chat model for a reference answer.
type OpenAIGenerator struct {
	client    oai.Client
	model     string
	maxTokens int64
}

type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openAIConfig)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPTimeout sets a per-request HTTP timeout.
func WithHTTPTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// NewOpenAIGenerator constructs a generator for model.
func NewOpenAIGenerator(apiKey, model string, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAIGenerator{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		maxTokens: 600,
	}, nil
}

// GenerateAnswer implements Generator.
func (g *OpenAIGenerator) GenerateAnswer(ctx context.Context, req Request) (*ReferenceAnswer, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(req.QuestionText),
		},
		MaxCompletionTokens: param.NewOpt(g.maxTokens),
		Temperature:         param.NewOpt(0.4),
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices in response")
	}

	answer, err := parseModelAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	answer.QuestionID = req.QuestionID
	answer.QuestionText = req.QuestionText
	return answer, nil
}

type modelAnswer struct {
	SampleAnswer  string   `json:"sampleAnswer"`
	KeyPoints     []string `json:"keyPoints"`
	StructureTips string   `json:"structureTips"`
}

// parseModelAnswer decodes the JSON object in content, tolerating code fences
// and surrounding prose.
func parseModelAnswer(content string) (*ReferenceAnswer, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errors.New("model reply contains no JSON object")
	}

	var m modelAnswer
	if err := json.Unmarshal([]byte(content[start:end+1]), &m); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	if strings.TrimSpace(m.SampleAnswer) == "" {
		return nil, errors.New("model reply has no sampleAnswer")
	}
	return &ReferenceAnswer{
		SampleAnswer:  m.SampleAnswer,
		KeyPoints:     m.KeyPoints,
		StructureTips: m.StructureTips,
	}, nil
}
