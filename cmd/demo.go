package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/config"
	"github.com/abhisek/riskdrill/internal/profile"
	"github.com/abhisek/riskdrill/internal/session"
	"github.com/abhisek/riskdrill/internal/ui/components"
	"github.com/abhisek/riskdrill/internal/ui/theme"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted session end to end and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		module, _ := cmd.Flags().GetString("module")
		level, _ := cmd.Flags().GetString("difficulty")
		count, _ := cmd.Flags().GetInt("questions")
		script, _ := cmd.Flags().GetString("script")
		verbose, _ := cmd.Flags().GetBool("verbose")

		plan, err := parseScript(script)
		if err != nil {
			return err
		}
		settings := session.DefaultSettings()
		settings.QuestionCount = count
		settings.ProgressiveComplexity = true
		if level != "" {
			if settings.Difficulty, err = assessment.ParseDifficulty(level); err != nil {
				return err
			}
		}

		var logOutput io.Writer = io.Discard
		if verbose {
			logOutput = os.Stderr
		}
		a, err := buildApp(cmd, logOutput, func(c *config.Config) {
			c.Store.Driver = "memory"
			c.Store.Path = ""
			c.Telemetry.Persist = false
		})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		p := profile.Profile{UserID: "demo", Role: "risk_manager", EBIOSYears: 3, Sector: "healthcare"}

		s, err := a.Sessions.Start(ctx, p.UserID, module, p, settings)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, theme.Title.Render("riskdrill demo")+theme.Subtitle.Render(fmt.Sprintf("  %s · %d question(s) · %s", module, len(s.Items), s.Level)))
		fmt.Fprintln(out)

		item := s.CurrentItem()
		for i := 0; item != nil; i++ {
			strong := plan[i%len(plan)]
			resp := assessment.Response{
				ItemID:  item.ID,
				Answers: scriptedAnswers(item, strong),
				Elapsed: time.Duration(item.TimeBudget) * time.Minute * 3 / 4,
			}
			outcome, err := a.Sessions.ProcessResponse(ctx, s.ID, resp)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s %s\n", theme.Body.Render(fmt.Sprintf("[%d] %s", i+1, item.Title)),
				theme.Hint.Render(item.Difficulty.String()))
			fmt.Fprintln(out, "    "+components.NewScoreBar("", outcome.Score.Percentage, true, 40).View())
			if outcome.Feedback != nil {
				fmt.Fprintln(out, "    "+theme.Subtitle.Render(outcome.Feedback.Content.Immediate.Summary))
			}
			if len(outcome.Adaptations) > 0 {
				names := make([]string, len(outcome.Adaptations))
				for j, act := range outcome.Adaptations {
					names[j] = string(act)
				}
				fmt.Fprintln(out, "    "+theme.Warn.Render("adapted: "+strings.Join(names, ", ")))
			}

			if outcome.SessionComplete {
				break
			}
			item = outcome.NextItem
		}

		res, err := a.Sessions.Finalize(ctx, s.ID)
		if err != nil {
			return err
		}

		cert := "not eligible"
		if res.Certification.Eligible {
			cert = "eligible (" + res.Certification.Level + ")"
		}
		summary := fmt.Sprintf("average %.1f%% · %s · trend %s · peer percentile %d\ncertification: %s, %s",
			res.Summary.AverageScore, res.Summary.OverallPerformance, res.Detailed.Trend,
			res.Detailed.Comparative.PeerPercentile, cert, res.Certification.Reason)
		fmt.Fprintln(out)
		fmt.Fprintln(out, theme.Card.Render(summary))
		for _, rec := range res.Recommendations {
			fmt.Fprintln(out, "  • "+rec)
		}
		return nil
	},
}

// parseScript reads a response plan like "strong,weak". The plan repeats
// when the session has more items than entries.
func parseScript(s string) ([]bool, error) {
	var plan []bool
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "strong":
			plan = append(plan, true)
		case "weak":
			plan = append(plan, false)
		case "":
		default:
			return nil, fmt.Errorf("unknown script entry %q (want strong or weak)", part)
		}
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("empty script")
	}
	return plan, nil
}

// scriptedAnswers builds answers from the item's own rubric. Strong answers
// satisfy every check and mention every keyword; weak answers cover only
// the first requirement with a placeholder.
func scriptedAnswers(item *assessment.Item, strong bool) map[string]any {
	answers := make(map[string]any, len(item.Requirements))
	if !strong {
		if len(item.Requirements) > 0 {
			answers[item.Requirements[0].ID] = "to be completed"
		}
		return answers
	}

	for _, req := range item.Requirements {
		var terms []string
		minItems := 0
		var fields []string
		for _, c := range item.Rubric.Criteria {
			if c.RequirementID != req.ID {
				continue
			}
			terms = append(terms, c.Keywords...)
			if c.Check == nil {
				continue
			}
			terms = append(terms, c.Check.Terms...)
			switch c.Check.Kind {
			case assessment.CheckMinItems:
				minItems = max(minItems, c.Check.Min)
			case assessment.CheckRequiredFields:
				fields = append(fields, c.Check.Fields...)
			}
		}
		rationale := fmt.Sprintf("For %s we considered %s. ", strings.ToLower(req.Title), strings.Join(terms, ", "))
		rationale = strings.Repeat(rationale, 3)

		switch {
		case len(fields) > 0:
			obj := map[string]any{"rationale": rationale}
			for _, f := range fields {
				obj[f] = "documented " + f + ": " + strings.Join(terms, ", ")
			}
			answers[req.ID] = obj
		case minItems > 0:
			n := max(minItems, len(terms), 3)
			entries := make([]string, n)
			for i := range entries {
				if i < len(terms) {
					entries[i] = terms[i]
				} else {
					entries[i] = fmt.Sprintf("%s element %d", req.Title, i+1)
				}
			}
			answers[req.ID] = entries
		default:
			answers[req.ID] = rationale
		}
	}
	return answers
}

func init() {
	demoCmd.Flags().StringP("module", "m", "workshop-1", "Module to assess")
	demoCmd.Flags().StringP("difficulty", "d", "", "Starting difficulty (default: derived from the demo profile)")
	demoCmd.Flags().IntP("questions", "n", 3, "Number of questions")
	demoCmd.Flags().String("script", "strong,strong,weak", "Comma-separated answer quality plan")
	demoCmd.Flags().BoolP("verbose", "v", false, "Show logs")
}
