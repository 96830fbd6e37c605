package chat

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rlmkit/rlm/model"
)

// OpenAITransportConfig configures NewOpenAITransport. Model is the default
// model, used when a request's Options.Model is empty; a Retry left zero
// (MaxAttempts 0) resolves to DefaultRetryConfig.
type OpenAITransportConfig struct {
	APIKey         string
	Model          string
	RequestOptions []option.RequestOption
	Retry          RetryConfig
}

// openAIRawTransport is the un-retried Transport that actually talks to the
// provider. NewOpenAITransport wraps it in RetryMiddleware via
// model.MiddlewareManager before handing a Transport back out.
type openAIRawTransport struct {
	client       *openai.Client
	defaultModel string
}

func (t *openAIRawTransport) Call(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    firstNonEmpty(req.Options.Model, t.defaultModel),
		Messages: buildMessageParams(req.Messages),
	}
	if req.Options.Temperature != nil {
		params.Temperature = openai.Float(*req.Options.Temperature)
	}
	if req.Options.MaxTokens != nil {
		params.MaxTokens = openai.Int(*req.Options.MaxTokens)
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("chat: provider returned no choices")
	}

	return Response{
		Message: Message{
			Role:      RoleAssistant,
			Content:   resp.Choices[0].Message.Content,
			Timestamp: time.Now(),
		},
		PromptTokens: int(resp.Usage.PromptTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}, nil
}

func buildMessageParams(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// NewOpenAITransport builds a Transport backed by the OpenAI chat completions
// API, with the retry contract (429/502/503/504, five attempts, exponential
// backoff from one second up to a minute) layered on through a
// model.MiddlewareManager rather than inlined into the call itself.
func NewOpenAITransport(cfg OpenAITransportConfig) Transport {
	options := append(cfg.RequestOptions, option.WithAPIKey(cfg.APIKey))
	client := openai.NewClient(options...)

	raw := &openAIRawTransport{client: &client, defaultModel: cfg.Model}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	manager := &model.MiddlewareManager[Request, Response]{}
	manager.UseCallMiddlewares(RetryMiddleware(retry))

	return FromCallHandler(manager.BuildCallHandler(AsCallHandler(raw)))
}
