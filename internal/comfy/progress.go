package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"comfypilot/internal/logging"
)

// ErrExecutionFailed reports a prompt that ComfyUI started but could not finish.
var ErrExecutionFailed = errors.New("workflow execution failed")

// Progress is one update from the execution feed.
type Progress struct {
	PromptID string
	Node     string
	Value    int
	Max      int
}

// Outcome summarizes a finished prompt.
type Outcome struct {
	PromptID string   `json:"prompt_id"`
	Executed []string `json:"executed_nodes"`
	Images   []string `json:"images,omitempty"`
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wsData struct {
	PromptID string  `json:"prompt_id"`
	Node     *string `json:"node"`
	Value    int     `json:"value"`
	Max      int     `json:"max"`
	Output   struct {
		Images []struct {
			Filename string `json:"filename"`
		} `json:"images"`
	} `json:"output"`
	ExceptionMessage string `json:"exception_message"`
	NodeType         string `json:"node_type"`
}

func (c *Client) wsURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"clientId": {c.clientID}}.Encode()
	return u.String()
}

// Watcher holds an open execution feed. Open it before queueing a prompt
// so no event is missed.
type Watcher struct {
	conn *websocket.Conn
}

// Watch opens the websocket feed for this client.
func (c *Client) Watch(ctx context.Context) (*Watcher, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket: %v", ErrUnavailable, err)
	}
	return &Watcher{conn: conn}, nil
}

// Close closes the feed.
func (w *Watcher) Close() error {
	return w.conn.Close()
}

// Wait blocks until promptID finishes, fails, or ctx ends. onProgress may be nil.
func (w *Watcher) Wait(ctx context.Context, promptID string, onProgress func(Progress)) (*Outcome, error) {
	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = w.conn.Close() })
	defer stop()

	out := &Outcome{PromptID: promptID}
	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("execution feed closed: %w", err)
		}
		// Binary frames carry preview images.
		if msgType != websocket.TextMessage {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debug("ignoring malformed ws message", "error", err)
			continue
		}
		var d wsData
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &d)
		}
		if d.PromptID != "" && d.PromptID != promptID {
			continue
		}

		switch msg.Type {
		case "progress":
			if onProgress != nil {
				p := Progress{PromptID: promptID, Value: d.Value, Max: d.Max}
				if d.Node != nil {
					p.Node = *d.Node
				}
				onProgress(p)
			}
		case "executed":
			if d.Node != nil {
				out.Executed = append(out.Executed, *d.Node)
			}
			for _, img := range d.Output.Images {
				out.Images = append(out.Images, img.Filename)
			}
		case "executing":
			// A null node marks the end of the prompt.
			if d.Node == nil && d.PromptID == promptID {
				return out, nil
			}
		case "execution_success":
			return out, nil
		case "execution_error":
			return nil, fmt.Errorf("%w: %s: %s", ErrExecutionFailed, d.NodeType, d.ExceptionMessage)
		case "execution_interrupted":
			return nil, fmt.Errorf("%w: interrupted", ErrExecutionFailed)
		}
	}
}

// Run queues prompt and waits for it to finish.
func (c *Client) Run(ctx context.Context, prompt any, onProgress func(Progress)) (*Outcome, error) {
	w, err := c.Watch(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	res, err := c.QueuePrompt(ctx, prompt)
	if err != nil {
		return nil, err
	}
	logging.Info("prompt queued", "prompt_id", res.PromptID, "number", res.Number)
	return w.Wait(ctx, res.PromptID, onProgress)
}
