package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/riskdrill/internal/config"
	"github.com/abhisek/riskdrill/internal/selfcheck"
)

var selfcheckCmd = &cobra.Command{
	Use:   "selfcheck",
	Short: "Run environment health checks",
	Long: "Runs configuration, catalog, generation, scoring, session and store checks.\n" +
		"Exits non-zero when critical checks fail and --fail-on-critical is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, _ := cmd.Flags().GetString("env")
		verbose, _ := cmd.Flags().GetBool("verbose")
		quiet, _ := cmd.Flags().GetBool("quiet")
		failOnCritical, _ := cmd.Flags().GetBool("fail-on-critical")
		asJSON, _ := cmd.Flags().GetBool("json")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		switch env {
		case config.EnvDevelopment, config.EnvStaging, config.EnvProduction:
		default:
			return fmt.Errorf("unknown environment %q", env)
		}

		var logOutput io.Writer = io.Discard
		if verbose {
			logOutput = os.Stderr
		}

		report := runSelfCheck(cmd, env, logOutput, timeout)

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else if err := selfcheck.Render(out, report, selfcheck.RenderOptions{Verbose: verbose, Quiet: quiet}); err != nil {
			return err
		}

		if code := selfcheck.ExitCode(report, failOnCritical); code != 0 {
			return fmt.Errorf("%d critical check(s) failed", report.CriticalFailures())
		}
		return nil
	},
}

// runSelfCheck wires the app and runs the default checks. A failure to
// wire is itself reported as a critical finding.
func runSelfCheck(cmd *cobra.Command, env string, logOutput io.Writer, timeout time.Duration) *selfcheck.Report {
	a, err := buildApp(cmd, logOutput, func(c *config.Config) { c.Env = env })
	if err != nil {
		return selfcheck.NewRunner([]selfcheck.Check{{
			Name:        "app.build",
			Description: "services can be wired from configuration",
			Severity:    selfcheck.SeverityCritical,
			Run:         func(context.Context) error { return err },
		}}).Run(cmd.Context(), env)
	}
	defer a.Close(context.Background())

	runner := selfcheck.NewRunner(selfcheck.DefaultChecks(a.SelfCheckTarget()), selfcheck.WithTimeout(timeout))
	return runner.Run(cmd.Context(), env)
}

func init() {
	selfcheckCmd.Flags().String("env", config.EnvDevelopment, "Environment: development, staging or production")
	selfcheckCmd.Flags().BoolP("verbose", "v", false, "List passing checks and show logs")
	selfcheckCmd.Flags().BoolP("quiet", "q", false, "Print failures only")
	selfcheckCmd.Flags().Bool("fail-on-critical", false, "Exit non-zero when a critical check fails")
	selfcheckCmd.Flags().Bool("json", false, "Print the report as JSON")
	selfcheckCmd.Flags().Duration("timeout", 30*time.Second, "Timeout per check")
}
