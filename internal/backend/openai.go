package backend

import (
	"context"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
)

// OpenAI streams from any OpenAI-compatible chat completions endpoint, including Ollama's /v1
// and llama.cpp's server.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(cfg config.BackendConfig) *OpenAI {
	options := []option.RequestOption{
		option.WithBaseURL(cfg.Endpoint),
		option.WithHTTPClient(httpClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAI{client: openai.NewClient(options...), model: cfg.Model}
}

func (o *OpenAI) ChatStream(ctx context.Context, req Request) (Stream, error) {
	params := openai.ChatCompletionNewParams{}

	params.Model = req.Model
	if params.Model == "" {
		params.Model = o.model
	}

	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	opts := req.Options
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.NumPredict != nil {
		params.MaxTokens = openai.Int(int64(*opts.NumPredict))
	}
	if opts.Seed != nil {
		params.Seed = openai.Int(int64(*opts.Seed))
	}

	// Options without a typed field are passed through as body fields for servers that honour
	// them.
	var extras []option.RequestOption
	if opts.TopK != nil {
		extras = append(extras, option.WithJSONSet("top_k", *opts.TopK))
	}
	if opts.RepeatPenalty != nil {
		extras = append(extras, option.WithJSONSet("repeat_penalty", *opts.RepeatPenalty))
	}
	for key, value := range opts.Extra {
		extras = append(extras, option.WithJSONSet(key, value))
	}

	return &openaiStream{stream: o.client.Chat.Completions.NewStreaming(ctx, params, extras...)}, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openaiStream) Next() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}

	if err := s.stream.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
