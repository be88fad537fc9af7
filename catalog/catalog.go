// Package catalog holds the read-only rule catalog the engine evaluates:
// tier thresholds, points rules, passport templates, achievements, and the
// promotion and overlay definitions. Built-in defaults can be overridden
// section by section from a YAML file.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// Catalog is the full rule configuration. Sections left empty in a loaded
// file fall back to the built-in defaults.
type Catalog struct {
	Tiers             []core.TierConfig          `yaml:"tiers"`
	PointsRules       []core.PointsRule          `yaml:"points_rules"`
	Templates         []passport.Template        `yaml:"passport_templates"`
	DefaultTemplateID string                     `yaml:"default_template_id"`
	Achievements      []passport.Achievement     `yaml:"achievements"`
	Promotions        []rewards.Promotion        `yaml:"promotions"`
	HappyHours        []rewards.HappyHourOverlay `yaml:"happy_hours"`
	Weather           []rewards.WeatherOverlay   `yaml:"weather_overlays"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Tiers:             defaultTiers(),
		PointsRules:       defaultPointsRules(),
		Templates:         defaultTemplates(),
		DefaultTemplateID: "daily_explorer",
		Achievements:      defaultAchievements(),
		Promotions:        defaultPromotions(),
		HappyHours:        defaultHappyHours(),
		Weather:           defaultWeather(),
	}
}

// Load reads a YAML catalog file and overlays it on the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Catalog, error) {
	cat := Default()
	if path == "" {
		return cat, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var loaded Catalog
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	cat.merge(&loaded)
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return cat, nil
}

func (c *Catalog) merge(over *Catalog) {
	if len(over.Tiers) > 0 {
		c.Tiers = over.Tiers
	}
	if len(over.PointsRules) > 0 {
		c.PointsRules = over.PointsRules
	}
	if len(over.Templates) > 0 {
		c.Templates = over.Templates
	}
	if over.DefaultTemplateID != "" {
		c.DefaultTemplateID = over.DefaultTemplateID
	}
	if len(over.Achievements) > 0 {
		c.Achievements = over.Achievements
	}
	if len(over.Promotions) > 0 {
		c.Promotions = over.Promotions
	}
	if len(over.HappyHours) > 0 {
		c.HappyHours = over.HappyHours
	}
	if len(over.Weather) > 0 {
		c.Weather = over.Weather
	}
}

// Validate checks internal consistency: the tier table must build, the
// default template must exist, and promotion conditions must carry weight.
func (c *Catalog) Validate() error {
	if _, err := core.NewTierTable(c.Tiers); err != nil {
		return err
	}
	found := false
	for _, t := range c.Templates {
		if t.ID == c.DefaultTemplateID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default template %q not in catalog", c.DefaultTemplateID)
	}
	for _, p := range c.Promotions {
		var total float64
		for _, cond := range p.Conditions {
			if cond.Weight < 0 {
				return fmt.Errorf("promotion %s: negative condition weight", p.ID)
			}
			total += cond.Weight
		}
		if len(p.Conditions) > 0 && total == 0 {
			return fmt.Errorf("promotion %s: conditions carry no weight", p.ID)
		}
	}
	return nil
}

// TierTable builds the tier table from the catalog's thresholds.
func (c *Catalog) TierTable() (*core.TierTable, error) {
	return core.NewTierTable(c.Tiers)
}
