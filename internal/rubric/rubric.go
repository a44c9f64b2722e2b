// Package rubric holds the scoring rubric for T³ cases: the per-level
// category sets, the score-payload normalizer, and the verdict policy that
// maps a total score to an accept/revise/reject decision.
package rubric

import (
	_ "embed"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"t3-curator/internal/cases"
)

//go:embed rubric.yaml
var rubricYAML []byte

type Category struct {
	Key    string  `yaml:"key"`
	Points float64 `yaml:"points"`
	Guide  string  `yaml:"guide"`
}

type LevelRubric struct {
	Description string     `yaml:"description"`
	Categories  []Category `yaml:"categories"`
}

// Band is one row of a threshold table on the 10-point scale.
type Band struct {
	ApproveMin float64 `yaml:"approve_min"`
	ReviewMin  float64 `yaml:"review_min"`
	ReviewMax  float64 `yaml:"review_max"`
}

type Thresholds struct {
	Unified  Band                      `yaml:"unified"`
	PerLevel map[cases.PearlLevel]Band `yaml:"per_level"`
}

type Definition struct {
	Version    string                           `yaml:"version"`
	PointTotal float64                          `yaml:"point_total"`
	Levels     map[cases.PearlLevel]LevelRubric `yaml:"levels"`
	Thresholds Thresholds                       `yaml:"thresholds"`
}

func Load() (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(rubricYAML, &def); err != nil {
		return nil, fmt.Errorf("rubric yaml: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func MustLoad() *Definition {
	def, err := Load()
	if err != nil {
		panic(err)
	}
	return def
}

// validate checks that every level's categories sum to the shared point
// total. The verdict thresholds only make sense if the scales are comparable
// across levels.
func (d *Definition) validate() error {
	for _, level := range []cases.PearlLevel{cases.L1, cases.L2, cases.L3} {
		lr, ok := d.Levels[level]
		if !ok || len(lr.Categories) == 0 {
			return fmt.Errorf("rubric %s: level %s missing", d.Version, level)
		}
		var sum float64
		seen := map[string]bool{}
		for _, c := range lr.Categories {
			if c.Key == "" || c.Points <= 0 {
				return fmt.Errorf("rubric %s: bad category %+v at %s", d.Version, c, level)
			}
			if seen[c.Key] {
				return fmt.Errorf("rubric %s: duplicate category %q at %s", d.Version, c.Key, level)
			}
			seen[c.Key] = true
			sum += c.Points
		}
		if math.Abs(sum-d.PointTotal) > 1e-9 {
			return fmt.Errorf("rubric %s: %s categories sum to %.2f, want %.2f", d.Version, level, sum, d.PointTotal)
		}
	}
	return nil
}

func (d *Definition) Level(level cases.PearlLevel) (LevelRubric, error) {
	lr, ok := d.Levels[level]
	if !ok {
		return LevelRubric{}, fmt.Errorf("no rubric for level %q", level)
	}
	return lr, nil
}

// UnifiedPolicy returns the canonical policy: one threshold table for all
// levels.
func (d *Definition) UnifiedPolicy() Policy {
	return Policy{Default: d.Thresholds.Unified}
}

// PerLevelPolicy reproduces the earlier per-level threshold behavior.
func (d *Definition) PerLevelPolicy() Policy {
	return Policy{Default: d.Thresholds.Unified, PerLevel: d.Thresholds.PerLevel}
}
