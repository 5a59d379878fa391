package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// completion is a vendor answer before any schema handling.
type completion struct {
	Text  string
	Usage Usage
	Model string
	Stop  StopReason
}

// backend is the vendor-specific half of a provider: it only translates a
// Request into one API call and the answer back.
type backend interface {
	complete(ctx context.Context, model string, req Request) (completion, error)
}

// Client is a Provider built from a backend. It owns everything vendors have
// in common: the per-request deadline, code fence stripping, truncation
// detection and schema validation.
type Client struct {
	vendor  string
	model   string
	timeout time.Duration
	backend backend
	schemas *schemaSet
}

func newClient(vendor, model string, timeout time.Duration, b backend) *Client {
	return &Client{
		vendor:  vendor,
		model:   ResolveModel(vendor, model),
		timeout: timeout,
		backend: b,
		schemas: sharedSchemas,
	}
}

// Vendor names the API the client talks to.
func (c *Client) Vendor() string { return c.vendor }

func (c *Client) ModelID() string { return c.model }

func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.backend.complete(ctx, c.model, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Usage:      out.Usage,
		Model:      orDefault(out.Model, c.model),
		StopReason: orDefault(out.Stop, StopEnd),
	}

	if req.Schema == nil {
		text, err := json.Marshal(out.Text)
		if err != nil {
			return nil, fmt.Errorf("encode %s text: %w", c.vendor, err)
		}
		resp.Content = text
		return resp, nil
	}

	content := stripFence([]byte(out.Text))
	if resp.StopReason == StopMaxTokens {
		return nil, &ErrMaxTokensExceeded{Content: content}
	}
	if len(content) == 0 {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("%s returned no content", c.vendor)}
	}
	if err := c.schemas.check(req.Schema, content); err != nil {
		return nil, err
	}
	resp.Content = content
	return resp, nil
}

// stripFence removes a markdown code fence some models wrap JSON in, e.g.
// "```json\n{...}\n```".
func stripFence(b []byte) json.RawMessage {
	b = bytes.TrimSpace(b)
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	} else {
		b = bytes.TrimPrefix(b, []byte("json"))
	}
	b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
	return bytes.TrimSpace(b)
}

var pingSchema = &Schema{
	Name: "connectivity-check",
	Definition: map[string]any{
		"type":       "object",
		"properties": map[string]any{"ok": map[string]any{"type": "boolean"}},
		"required":   []any{"ok"},
	},
}

// Ping sends the smallest structured request the evaluator would send and
// reports whether p answered it.
func Ping(ctx context.Context, p Provider) error {
	ctx = WithPurpose(ctx, PurposeConnectivityCheck)
	_, err := p.Generate(ctx, Request{
		System:    `Reply with {"ok": true}.`,
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		Schema:    pingSchema,
		MaxTokens: 16,
	})
	if err != nil {
		return fmt.Errorf("ping %s: %w", p.ModelID(), err)
	}
	return nil
}
