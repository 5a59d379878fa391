package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/riskdrill/internal/assessment"
	"github.com/abhisek/riskdrill/internal/catalog"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and validate assessment templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		module, _ := cmd.Flags().GetString("module")
		level, _ := cmd.Flags().GetString("difficulty")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cat := catalog.New()
		loader := catalog.NewLoader(cat)
		if _, err := loader.LoadEmbedded(); err != nil {
			return fmt.Errorf("load seed catalog: %w", err)
		}
		if cfg.Catalog.Dir != "" {
			if _, err := loader.LoadDir(cfg.Catalog.Dir); err != nil {
				return err
			}
		}

		var want assessment.Difficulty
		if level != "" {
			if want, err = assessment.ParseDifficulty(level); err != nil {
				return err
			}
		}

		templates := cat.All()
		if module != "" {
			templates = cat.ByModule(module)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-30s  %-11s  %-13s  %-24s  %-8s  %6s  %s\n",
			"ID", "Module", "Difficulty", "Type", "Version", "Points", "Title")
		fmt.Fprintln(out, strings.Repeat("─", 120))

		shown := 0
		for _, t := range templates {
			if want != 0 && t.Difficulty != want {
				continue
			}
			item := t.Instantiate(t.ID)
			fmt.Fprintf(out, "%-30s  %-11s  %-13s  %-24s  %-8s  %6.0f  %s\n",
				truncate(t.ID, 30), t.ModuleID, t.Difficulty, t.Type, t.Metadata.Version, item.MaxPoints(), t.Title)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No templates found.")
		}
		return nil
	},
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate template YAML files without loading them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var checked, failed int

		err := filepath.WalkDir(args[0], func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := filepath.Ext(path)
			if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
				return nil
			}
			checked++
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			t, err := catalog.Parse(data)
			if err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s\n    %v\n", path, err)
				return nil
			}
			fmt.Fprintf(out, "✓ %s (%s, %s)\n", path, t.ID, t.Difficulty)
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\n%d file(s) checked, %d invalid\n", checked, failed)
		if failed > 0 {
			return fmt.Errorf("%d invalid template(s)", failed)
		}
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func init() {
	templatesListCmd.Flags().StringP("module", "m", "", "Filter by module (e.g. workshop-2)")
	templatesListCmd.Flags().StringP("difficulty", "d", "", "Filter by difficulty")

	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesValidateCmd)
}
