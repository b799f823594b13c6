package client

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"comfypilot/internal/chat"
	"comfypilot/internal/config"
	"comfypilot/internal/logging"
	"comfypilot/internal/ratelimit"
)

// GeminiConfig holds configuration for the Gemini API client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient streams responses from the Google Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	config      *genai.GenerateContentConfig
	rateLimiter *ratelimit.Limiter
}

// NewGeminiClient creates a Gemini provider.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, limiter *ratelimit.Limiter) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required.\n\nGet your free API key at: https://aistudio.google.com/apikey\n\nThen set GEMINI_API_KEY or api.api_key in the config file")
	}
	if cfg.Model == "" {
		cfg.Model = config.DefaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		Backend:    genai.BackendGeminiAPI,
		APIKey:     cfg.APIKey,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		genConfig.MaxOutputTokens = cfg.MaxOutputTokens
	}

	logging.Debug("created Gemini client", "model", cfg.Model)

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		config:      genConfig,
		rateLimiter: limiter,
	}, nil
}

// Name returns "gemini".
func (c *GeminiClient) Name() string { return "gemini" }

// Model returns the model name.
func (c *GeminiClient) Model() string { return c.model }

// Stream sends the request and converts the response stream into events.
func (c *GeminiClient) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, WrapError(c.Name(), fmt.Errorf("rate limit: %w", err))
	}

	genConfig := *c.config
	if system := req.System(); system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: req.Tools}}
	}
	contents := toGeminiContents(req.Conversation())

	events := make(chan Event, 16)
	go func() {
		defer close(events)

		sawCalls := false
		var usage Usage
		var reason genai.FinishReason
		var blocked bool

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, &genConfig) {
			if err != nil {
				send(ctx, events, Event{Type: EventError, Err: WrapError(c.Name(), err)})
				return
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				blocked = true
			}
			if len(resp.Candidates) == 0 {
				continue
			}

			candidate := resp.Candidates[0]
			if candidate.FinishReason != "" {
				reason = candidate.FinishReason
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				switch {
				case part.FunctionCall != nil:
					sawCalls = true
					call := toolCallFromGemini(part)
					if !send(ctx, events, Event{Type: EventToolCallComplete, Call: &call}) {
						return
					}
				case part.Thought && part.Text != "":
					if !send(ctx, events, Event{Type: EventReasoningDelta, Text: part.Text}) {
						return
					}
				case part.Text != "":
					if !send(ctx, events, Event{Type: EventTextDelta, Text: part.Text}) {
						return
					}
				}
			}
		}

		if ctx.Err() != nil {
			send(ctx, events, Event{Type: EventError, Err: ctx.Err()})
			return
		}
		finish := geminiFinishReason(reason, sawCalls)
		if blocked {
			finish = FinishContentFilter
		}
		send(ctx, events, Event{Type: EventFinish, Reason: finish, Usage: usage})
	}()

	return events, nil
}

func toolCallFromGemini(part *genai.Part) chat.ToolCall {
	fc := part.FunctionCall
	id := fc.ID
	if id == "" {
		id = NewCallID()
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return chat.ToolCall{ID: id, Name: fc.Name, Args: args, Signature: part.ThoughtSignature}
}

func geminiFinishReason(reason genai.FinishReason, sawCalls bool) FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return FinishContentFilter
	case genai.FinishReasonMalformedFunctionCall:
		return FinishError
	}
	if sawCalls {
		return FinishToolCalls
	}
	return FinishStop
}

// toGeminiContents converts model-order messages into Gemini contents.
// Consecutive tool messages become one user content holding all function
// responses, which is how Gemini pairs them with the preceding calls.
func toGeminiContents(msgs []*chat.Message) []*genai.Content {
	var contents []*genai.Content
	var responses *genai.Content

	flush := func() {
		if responses != nil {
			contents = append(contents, responses)
			responses = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case chat.RoleTool:
			if responses == nil {
				responses = &genai.Content{Role: genai.RoleUser}
			}
			for _, r := range m.ToolResults() {
				part := genai.NewPartFromFunctionResponse(r.Name, r.Output)
				part.FunctionResponse.ID = r.CallID
				responses.Parts = append(responses.Parts, part)
			}
		case chat.RoleUser:
			flush()
			if text := m.Text(); text != "" {
				contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
			}
		case chat.RoleAssistant:
			flush()
			content := &genai.Content{Role: genai.RoleModel}
			for _, p := range m.Parts {
				switch p.Kind {
				case chat.PartText:
					if p.Text != "" {
						content.Parts = append(content.Parts, genai.NewPartFromText(p.Text))
					}
				case chat.PartToolCall:
					part := genai.NewPartFromFunctionCall(p.Call.Name, p.Call.Args)
					part.FunctionCall.ID = p.Call.ID
					part.ThoughtSignature = p.Call.Signature
					content.Parts = append(content.Parts, part)
				}
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		}
	}
	flush()

	if len(contents) == 0 {
		contents = []*genai.Content{genai.NewContentFromText(" ", genai.RoleUser)}
	}
	return contents
}
