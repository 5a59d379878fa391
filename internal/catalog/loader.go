package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/riskdrill/internal/assessment"
)

//go:embed seed/*.yaml
var seedFS embed.FS

// templateFile is the on-disk YAML shape of a template.
type templateFile struct {
	ID         string        `yaml:"id"`
	Module     string        `yaml:"module"`
	Type       string        `yaml:"type"`
	Difficulty string        `yaml:"difficulty"`
	Category   string        `yaml:"category"`
	Title      string        `yaml:"title"`
	TimeBudget int           `yaml:"time_budget"`
	Scenario   scenarioFile  `yaml:"scenario"`
	Reqs       []requirement `yaml:"requirements"`
	Rubric     rubricFile    `yaml:"rubric"`
	Hints      []hintFile    `yaml:"hints"`
	Validation []ruleFile    `yaml:"validation"`
	Metadata   metadataFile  `yaml:"metadata"`
}

type scenarioFile struct {
	Description  string         `yaml:"description"`
	Context      map[string]any `yaml:"context"`
	Stakeholders []string       `yaml:"stakeholders"`
	Constraints  []string       `yaml:"constraints"`
	Regulations  []string       `yaml:"regulations"`
	Threats      []string       `yaml:"threats"`
	Timeline     string         `yaml:"timeline"`
}

type requirement struct {
	ID          string  `yaml:"id"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
	Deliverable string  `yaml:"deliverable"`
}

type rubricFile struct {
	Criteria []criterionFile  `yaml:"criteria"`
	Bonus    []adjustmentFile `yaml:"bonus"`
	Penalty  []adjustmentFile `yaml:"penalty"`
}

type criterionFile struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Requirement string     `yaml:"requirement"`
	Points      float64    `yaml:"points"`
	Method      string     `yaml:"method"`
	Check       *checkFile `yaml:"check"`
	Keywords    []string   `yaml:"keywords"`
}

type checkFile struct {
	Kind   string   `yaml:"kind"`
	Min    int      `yaml:"min"`
	Fields []string `yaml:"fields"`
	Terms  []string `yaml:"terms"`
}

type adjustmentFile struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description"`
	Requirement string    `yaml:"requirement"`
	Points      float64   `yaml:"points"`
	Check       checkFile `yaml:"check"`
}

type hintFile struct {
	Level     int     `yaml:"level"`
	Text      string  `yaml:"text"`
	Deduction float64 `yaml:"deduction"`
}

type ruleFile struct {
	Field    string `yaml:"field"`
	Rule     string `yaml:"rule"`
	Message  string `yaml:"message"`
	Severity string `yaml:"severity"`
}

type metadataFile struct {
	Version   string    `yaml:"version"`
	Tags      []string  `yaml:"tags"`
	Author    string    `yaml:"author"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Usage     struct {
		TimesUsed   int     `yaml:"times_used"`
		SuccessRate float64 `yaml:"success_rate"`
		AvgRating   float64 `yaml:"avg_rating"`
	} `yaml:"usage"`
}

// Loader reads YAML template files into a Catalog.
type Loader struct {
	catalog *Catalog
}

// NewLoader creates a loader that fills the given catalog.
func NewLoader(c *Catalog) *Loader {
	return &Loader{catalog: c}
}

// LoadEmbedded loads the seed templates compiled into the binary.
func (l *Loader) LoadEmbedded() (int, error) {
	return l.LoadFS(seedFS, "seed")
}

// LoadDir loads every *.yaml / *.yml file under dir, one level of
// subdirectories included. Files that fail to parse or validate are logged
// and skipped.
func (l *Loader) LoadDir(dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("stat template dir: %w", err)
	}
	return l.LoadFS(os.DirFS(dir), ".")
}

// LoadFS loads templates from root within fsys.
func (l *Loader) LoadFS(fsys fs.FS, root string) (int, error) {
	slog.Info("loading templates", "root", root)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*/*.yaml", "*/*.yml"} {
		matches, err := fs.Glob(fsys, path.Join(root, pattern))
		if err != nil {
			return 0, fmt.Errorf("glob templates: %w", err)
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			slog.Warn("failed to read template", "file", file, "error", err)
			continue
		}
		t, err := Parse(data)
		if err != nil {
			slog.Warn("failed to load template", "file", file, "error", err)
			continue
		}
		if l.catalog.Add(*t) {
			loaded++
			slog.Debug("template loaded", "id", t.ID, "module", t.ModuleID, "version", t.Metadata.Version)
		}
	}

	slog.Info("templates loaded", "count", loaded, "total_files", len(files))
	return loaded, nil
}

// Parse decodes and validates a single YAML template document.
func Parse(data []byte) (*Template, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return tf.toTemplate()
}

func (tf *templateFile) toTemplate() (*Template, error) {
	diff, err := assessment.ParseDifficulty(tf.Difficulty)
	if err != nil {
		return nil, err
	}

	t := &Template{
		ID:         tf.ID,
		ModuleID:   tf.Module,
		Type:       assessment.ItemType(tf.Type),
		Difficulty: diff,
		Category:   tf.Category,
		Title:      tf.Title,
		TimeBudget: tf.TimeBudget,
		Scenario: assessment.Scenario{
			Description:  strings.TrimSpace(tf.Scenario.Description),
			Context:      tf.Scenario.Context,
			Stakeholders: tf.Scenario.Stakeholders,
			Constraints:  tf.Scenario.Constraints,
			Regulations:  tf.Scenario.Regulations,
			Threats:      tf.Scenario.Threats,
			Timeline:     tf.Scenario.Timeline,
		},
		Metadata: Metadata{
			Version:   canonicalVersion(tf.Metadata.Version),
			Tags:      tf.Metadata.Tags,
			Author:    tf.Metadata.Author,
			UpdatedAt: tf.Metadata.UpdatedAt,
			Usage: Usage{
				TimesUsed:   tf.Metadata.Usage.TimesUsed,
				SuccessRate: tf.Metadata.Usage.SuccessRate,
				AvgRating:   tf.Metadata.Usage.AvgRating,
			},
		},
	}
	if t.TimeBudget == 0 {
		t.TimeBudget = 30
	}

	for _, r := range tf.Reqs {
		t.Requirements = append(t.Requirements, assessment.Requirement{
			ID:          r.ID,
			Title:       r.Title,
			Description: strings.TrimSpace(r.Description),
			Weight:      r.Weight,
			Deliverable: r.Deliverable,
		})
	}

	for _, c := range tf.Rubric.Criteria {
		crit := assessment.Criterion{
			ID:            c.ID,
			Name:          c.Name,
			RequirementID: c.Requirement,
			Points:        c.Points,
			Method:        assessment.NormalizeMethod(c.Method),
			Keywords:      c.Keywords,
		}
		if c.Check != nil {
			chk := c.Check.toCheck()
			crit.Check = &chk
		}
		t.Rubric.Criteria = append(t.Rubric.Criteria, crit)
	}
	t.Rubric.Bonus = toAdjustments(tf.Rubric.Bonus)
	t.Rubric.Penalty = toAdjustments(tf.Rubric.Penalty)

	for _, h := range tf.Hints {
		t.Hints = append(t.Hints, assessment.Hint{Level: h.Level, Text: h.Text, Deduction: h.Deduction})
	}

	for _, r := range tf.Validation {
		sev := assessment.SeverityMinor
		if r.Severity == "error" {
			sev = assessment.SeverityCritical
		}
		t.Rules = append(t.Rules, assessment.Rule{
			Field:    r.Field,
			Rule:     r.Rule,
			Message:  r.Message,
			Severity: sev,
		})
	}

	return t, nil
}

func (c checkFile) toCheck() assessment.Check {
	return assessment.Check{
		Kind:   assessment.CheckKind(c.Kind),
		Min:    c.Min,
		Fields: c.Fields,
		Terms:  c.Terms,
	}
}

func toAdjustments(in []adjustmentFile) []assessment.Adjustment {
	var out []assessment.Adjustment
	for _, a := range in {
		out = append(out, assessment.Adjustment{
			ID:            a.ID,
			Description:   a.Description,
			RequirementID: a.Requirement,
			Points:        a.Points,
			Check:         a.Check.toCheck(),
		})
	}
	return out
}

// canonicalVersion returns a semver string with a "v" prefix. Invalid or
// empty versions become "v0.0.0".
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v0.0.0"
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "v0.0.0"
	}
	return semver.Canonical(v)
}
