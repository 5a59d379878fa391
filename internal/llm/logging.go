package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abhisek/riskdrill/internal/telemetry"
)

// maxLoggedBody bounds the request and response text attached to events.
const maxLoggedBody = 4096

// LoggingProvider is a decorator that reports every LLM request as a
// telemetry event.
type LoggingProvider struct {
	inner Provider
	sink  telemetry.Sink
	now   func() time.Time
}

// WithLogging wraps a Provider with event reporting. A nil sink only logs.
func WithLogging(p Provider, sink telemetry.Sink) Provider {
	if sink == nil {
		sink = telemetry.Nop
	}
	return &LoggingProvider{inner: p, sink: sink, now: time.Now}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := l.now()
	purpose := string(PurposeFrom(ctx))

	resp, err := l.inner.Generate(ctx, req)

	latency := l.now().Sub(start)
	e := telemetry.NewEvent(telemetry.LLMRequest, "").
		With("model", l.inner.ModelID()).
		With(telemetry.AttrPurpose, purpose).
		With(telemetry.AttrLatencyMS, latency.Milliseconds()).
		With(telemetry.AttrSuccess, err == nil).
		With("request", truncate(serializeRequest(req), maxLoggedBody))

	if resp != nil {
		e = e.With("input_tokens", resp.Usage.InputTokens).
			With("output_tokens", resp.Usage.OutputTokens).
			With("model", resp.Model).
			With("response", truncate(string(resp.Content), maxLoggedBody))
		if c := LookupCost(resp.Model); c != nil {
			e = e.With("cost_usd", c.Cost(resp.Usage.InputTokens, resp.Usage.OutputTokens))
		}
	}

	if err != nil {
		e = e.With("error", err.Error())
		slog.Warn("llm request failed", "purpose", purpose, "model", l.inner.ModelID(), "latency", latency, "error", err)
	} else {
		slog.Debug("llm request", "purpose", purpose, "model", resp.Model, "latency", latency)
	}

	l.sink.Emit(e)
	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n", req.Schema.Name)
			b.Write(schemaDef)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
