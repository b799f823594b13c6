package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"

	"comfypilot/internal/chat"
	"comfypilot/internal/config"
	"comfypilot/internal/logging"
	"comfypilot/internal/ratelimit"
)

// OllamaConfig holds configuration for the Ollama API client.
type OllamaConfig struct {
	BaseURL     string        // Default: "http://localhost:11434"
	APIKey      string        // Optional, for remote Ollama servers with auth
	Model       string        // e.g., "qwen2.5:7b"
	Temperature float32       // Temperature for generation
	MaxTokens   int32         // Max output tokens
	HTTPTimeout time.Duration // HTTP request timeout (default: 120s)
}

// OllamaClient streams responses from an Ollama server.
type OllamaClient struct {
	client      *api.Client
	config      OllamaConfig
	rateLimiter *ratelimit.Limiter
}

// authTransport adds an Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllamaClient creates an Ollama provider.
func NewOllamaClient(cfg OllamaConfig, limiter *ratelimit.Limiter) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultOllamaBaseURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = config.DefaultMaxOutput
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = config.DefaultModelTimeout
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}

	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host",
				"host", host,
				"recommendation", "use HTTPS for remote Ollama servers")
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: cfg.APIKey}
	}

	return &OllamaClient{
		client:      api.NewClient(baseURL, httpClient),
		config:      cfg,
		rateLimiter: limiter,
	}, nil
}

// Name returns "ollama".
func (c *OllamaClient) Name() string { return "ollama" }

// Model returns the model name.
func (c *OllamaClient) Model() string { return c.config.Model }

// Stream sends a chat request and converts the streamed chunks into events.
func (c *OllamaClient) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, WrapError(c.Name(), fmt.Errorf("rate limit: %w", err))
	}

	chatReq := &api.ChatRequest{
		Model:    c.config.Model,
		Messages: toOllamaMessages(req.System(), req.Conversation()),
		Stream:   Ptr(true),
		Tools:    toOllamaTools(req.Tools),
		Options: map[string]any{
			"num_predict": c.config.MaxTokens,
		},
	}
	if c.config.Temperature > 0 {
		chatReq.Options["temperature"] = c.config.Temperature
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)

		index := 0
		sawCalls := false
		var finish Event

		err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Thinking != "" {
				if !send(ctx, events, Event{Type: EventReasoningDelta, Text: resp.Message.Thinking}) {
					return ctx.Err()
				}
			}
			if resp.Message.Content != "" {
				if !send(ctx, events, Event{Type: EventTextDelta, Text: resp.Message.Content}) {
					return ctx.Err()
				}
			}
			for _, tc := range resp.Message.ToolCalls {
				sawCalls = true
				call := toolCallFromOllama(tc)
				index++
				if !send(ctx, events, Event{Type: EventToolCallComplete, Call: &call, Index: index - 1}) {
					return ctx.Err()
				}
			}
			if resp.Done {
				finish = Event{
					Type:   EventFinish,
					Reason: ollamaFinishReason(resp.DoneReason, sawCalls),
					Usage: Usage{
						InputTokens:  resp.PromptEvalCount,
						OutputTokens: resp.EvalCount,
					},
				}
			}
			return nil
		})
		if err != nil {
			send(ctx, events, Event{Type: EventError, Err: WrapError(c.Name(), err)})
			return
		}
		if finish.Type != EventFinish {
			finish = Event{Type: EventFinish, Reason: ollamaFinishReason("", sawCalls)}
		}
		send(ctx, events, finish)
	}()

	return events, nil
}

func toolCallFromOllama(tc api.ToolCall) chat.ToolCall {
	id := tc.ID
	if id == "" {
		id = NewCallID()
	}
	args := tc.Function.Arguments.ToMap()
	if args == nil {
		args = map[string]any{}
	}
	return chat.ToolCall{ID: id, Name: tc.Function.Name, Args: args}
}

func ollamaFinishReason(doneReason string, sawCalls bool) FinishReason {
	if doneReason == "length" {
		return FinishLength
	}
	if sawCalls {
		return FinishToolCalls
	}
	return FinishStop
}

// toOllamaMessages converts model-order messages into Ollama chat messages.
func toOllamaMessages(system string, msgs []*chat.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, api.Message{Role: "system", Content: system})
	}

	for _, m := range msgs {
		switch m.Role {
		case chat.RoleUser:
			out = append(out, api.Message{Role: "user", Content: m.Text()})
		case chat.RoleAssistant:
			msg := api.Message{Role: "assistant", Content: m.Text()}
			for _, call := range m.ToolCalls() {
				args := api.NewToolCallFunctionArguments()
				for k, v := range call.Args {
					args.Set(k, v)
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: call.ID,
					Function: api.ToolCallFunction{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			if msg.Content != "" || len(msg.ToolCalls) > 0 {
				out = append(out, msg)
			}
		case chat.RoleTool:
			for _, r := range m.ToolResults() {
				out = append(out, api.Message{
					Role:       "tool",
					Content:    resultContent(r.Output),
					ToolName:   r.Name,
					ToolCallID: r.CallID,
				})
			}
		}
	}
	return out
}

func resultContent(output map[string]any) string {
	if output == nil {
		return "{}"
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())
	}
	return string(data)
}

// toOllamaTools converts function declarations to Ollama tools. Only the
// top level of each schema is carried; nested objects are declared as
// "object" and validated by the registry.
func toOllamaTools(decls []*genai.FunctionDeclaration) []api.Tool {
	if len(decls) == 0 {
		return nil
	}
	tools := make([]api.Tool, 0, len(decls))
	for _, decl := range decls {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Properties: api.NewToolPropertiesMap(),
		}
		if decl.Parameters != nil {
			params.Required = decl.Parameters.Required
			for name, schema := range decl.Parameters.Properties {
				prop := api.ToolProperty{Description: schema.Description}
				if schema.Type != "" {
					prop.Type = api.PropertyType{strings.ToLower(string(schema.Type))}
				}
				if len(schema.Enum) > 0 {
					enum := make([]any, len(schema.Enum))
					for i, v := range schema.Enum {
						enum[i] = v
					}
					prop.Enum = enum
				}
				params.Properties.Set(name, prop)
			}
		}
		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
