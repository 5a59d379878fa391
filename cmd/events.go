package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/riskdrill/internal/llm"
	"github.com/abhisek/riskdrill/internal/store"
	"github.com/abhisek/riskdrill/internal/telemetry"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect recorded telemetry events",
}

func openStore(cmd *cobra.Command) (*store.SQLStore, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events in sequence order",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		after, _ := cmd.Flags().GetInt64("after")
		typ, _ := cmd.Flags().GetString("type")
		sessionID, _ := cmd.Flags().GetString("session")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.ListEvents(cmd.Context(), store.QueryOpts{
			Limit:     limit,
			After:     after,
			Type:      typ,
			SessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No events found.")
			return nil
		}

		fmt.Fprintf(out, "%-6s  %-19s  %-18s  %-24s  %s\n", "Seq", "Timestamp", "Type", "Session", "Summary")
		fmt.Fprintln(out, strings.Repeat("─", 100))
		for _, e := range events {
			fmt.Fprintf(out, "%-6d  %-19s  %-18s  %-24s  %s\n",
				e.Sequence,
				e.Time.Local().Format("2006-01-02 15:04:05"),
				e.Type,
				truncate(e.SessionID, 24),
				summarizeAttrs(e),
			)
		}
		return nil
	},
}

var eventsViewCmd = &cobra.Command{
	Use:   "view <sequence>",
	Short: "View one event with all attributes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var seq int64
		if _, err := fmt.Sscanf(args[0], "%d", &seq); err != nil {
			return fmt.Errorf("invalid sequence %q: %w", args[0], err)
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.ListEvents(cmd.Context(), store.QueryOpts{After: seq - 1, Limit: 1})
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if len(events) == 0 || events[0].Sequence != seq {
			return fmt.Errorf("event %d not found", seq)
		}
		e := events[0]

		out := cmd.OutOrStdout()
		sep := strings.Repeat("─", 60)
		fmt.Fprintf(out, "Seq:       %d\n", e.Sequence)
		fmt.Fprintf(out, "ID:        %s\n", e.ID)
		fmt.Fprintf(out, "Time:      %s\n", e.Time.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Type:      %s\n", e.Type)
		if e.SessionID != "" {
			fmt.Fprintf(out, "Session:   %s\n", e.SessionID)
		}
		if e.UserID != "" {
			fmt.Fprintf(out, "User:      %s\n", e.UserID)
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, sep)
		fmt.Fprintln(out, "ATTRIBUTES")
		fmt.Fprintln(out, sep)
		if len(e.Attrs) == 0 {
			fmt.Fprintln(out, "(none)")
			return nil
		}
		data, err := json.MarshalIndent(e.Attrs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

type modelUsage struct {
	Model        string
	Calls        int
	Failures     int
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

var eventsLLMStatsCmd = &cobra.Command{
	Use:   "llm-stats",
	Short: "Show aggregated LLM token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		usage, err := llmUsage(cmd.Context(), s)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(usage) == 0 {
			fmt.Fprintln(out, "No LLM usage recorded yet.")
			return nil
		}

		fmt.Fprintln(out, "Estimated Cost (USD)")
		fmt.Fprintln(out, strings.Repeat("─", 86))
		fmt.Fprintf(out, "%-32s  %6s  %6s  %10s  %10s  %8s  %10s\n",
			"Model", "Calls", "Fail", "Input", "Output", "Avg Ms", "Cost")
		fmt.Fprintln(out, strings.Repeat("─", 86))

		var totalCost float64
		var unknownModels []string
		for _, mu := range usage {
			avg := mu.LatencyMs / int64(mu.Calls)
			cost := llm.LookupCost(mu.Model)
			if cost == nil {
				unknownModels = append(unknownModels, mu.Model)
				fmt.Fprintf(out, "%-32s  %6d  %6d  %10d  %10d  %8d  %10s\n",
					truncate(mu.Model, 32), mu.Calls, mu.Failures, mu.InputTokens, mu.OutputTokens, avg, "?")
				continue
			}
			c := cost.Cost(mu.InputTokens, mu.OutputTokens)
			totalCost += c
			fmt.Fprintf(out, "%-32s  %6d  %6d  %10d  %10d  %8d  %10s\n",
				truncate(mu.Model, 32), mu.Calls, mu.Failures, mu.InputTokens, mu.OutputTokens, avg, formatCost(c))
		}

		fmt.Fprintln(out, strings.Repeat("─", 86))
		label := "TOTAL"
		if len(unknownModels) > 0 {
			label = "TOTAL (partial)"
		}
		fmt.Fprintf(out, "%-32s  %6s  %6s  %10s  %10s  %8s  %10s\n", label, "", "", "", "", "", formatCost(totalCost))
		if len(unknownModels) > 0 {
			fmt.Fprintf(out, "\nPricing unavailable for: %s\n", strings.Join(unknownModels, ", "))
		}
		return nil
	},
}

func llmUsage(ctx context.Context, s *store.SQLStore) ([]modelUsage, error) {
	events, err := s.ListEvents(ctx, store.QueryOpts{Type: string(telemetry.LLMRequest)})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	byModel := make(map[string]*modelUsage)
	for _, e := range events {
		model, _ := e.Attrs["model"].(string)
		mu, ok := byModel[model]
		if !ok {
			mu = &modelUsage{Model: model}
			byModel[model] = mu
		}
		mu.Calls++
		if ok, _ := e.Attrs[telemetry.AttrSuccess].(bool); !ok {
			mu.Failures++
		}
		mu.InputTokens += int(number(e.Attrs["input_tokens"]))
		mu.OutputTokens += int(number(e.Attrs["output_tokens"]))
		mu.LatencyMs += int64(number(e.Attrs[telemetry.AttrLatencyMS]))
	}

	out := make([]modelUsage, 0, len(byModel))
	for _, mu := range byModel {
		out = append(out, *mu)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

// number reads a JSON-decoded numeric attribute.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func summarizeAttrs(e store.StoredEvent) string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		if k == "request" || k == "response" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Attrs[k]))
	}
	return truncate(strings.Join(parts, " "), 60)
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	eventsListCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	eventsListCmd.Flags().Int64("after", 0, "Only events with a sequence above this one")
	eventsListCmd.Flags().StringP("type", "t", "", "Filter by type (e.g. response_scored, llm_request)")
	eventsListCmd.Flags().StringP("session", "s", "", "Filter by session id")

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsViewCmd)
	eventsCmd.AddCommand(eventsLLMStatsCmd)
}
