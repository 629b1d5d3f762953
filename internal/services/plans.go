package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type PlanLimits struct {
	MaxConcurrentGenerations int `yaml:"max_concurrent_generations" json:"max_concurrent_generations"`
}

type FlowSpec struct {
	Cost        int64  `yaml:"cost" json:"cost"`
	WebhookPath string `yaml:"webhook_path" json:"webhook_path"`
}

// PlanCatalog holds per-plan concurrency ceilings and per-flow credit costs.
type PlanCatalog struct {
	DefaultPlan string                `yaml:"default_plan"`
	Plans       map[string]PlanLimits `yaml:"plans"`
	Flows       map[string]FlowSpec   `yaml:"flows"`
}

func DefaultPlanCatalog() *PlanCatalog {
	return &PlanCatalog{
		DefaultPlan: "free",
		Plans: map[string]PlanLimits{
			"free":       {MaxConcurrentGenerations: 1},
			"starter":    {MaxConcurrentGenerations: 2},
			"pro":        {MaxConcurrentGenerations: 3},
			"enterprise": {MaxConcurrentGenerations: 10},
		},
		Flows: map[string]FlowSpec{
			"blog-post":      {Cost: 20, WebhookPath: "/webhook/blog-post"},
			"social-post":    {Cost: 5, WebhookPath: "/webhook/social-post"},
			"video-script":   {Cost: 30, WebhookPath: "/webhook/video-script"},
			"product-images": {Cost: 40, WebhookPath: "/webhook/product-images"},
		},
	}
}

// LoadPlanCatalog reads a YAML catalog; an empty path yields the defaults.
func LoadPlanCatalog(path string) (*PlanCatalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultPlanCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans config: %w", err)
	}
	return ParsePlanCatalog(raw)
}

func ParsePlanCatalog(raw []byte) (*PlanCatalog, error) {
	var c PlanCatalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse plans config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *PlanCatalog) normalize() error {
	plans := make(map[string]PlanLimits, len(c.Plans))
	for name, p := range c.Plans {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return fmt.Errorf("plans config: empty plan name")
		}
		if p.MaxConcurrentGenerations < 0 {
			return fmt.Errorf("plans config: plan %q has negative max_concurrent_generations", name)
		}
		plans[key] = p
	}
	flows := make(map[string]FlowSpec, len(c.Flows))
	for id, f := range c.Flows {
		key := strings.TrimSpace(id)
		if key == "" {
			return fmt.Errorf("plans config: empty flow id")
		}
		if f.Cost < 0 {
			return fmt.Errorf("plans config: flow %q has negative cost", id)
		}
		flows[key] = f
	}
	c.Plans = plans
	c.Flows = flows
	c.DefaultPlan = strings.ToLower(strings.TrimSpace(c.DefaultPlan))
	if c.DefaultPlan == "" {
		c.DefaultPlan = "free"
	}
	return nil
}

// MaxConcurrent resolves the ceiling for plan. Unknown plans fall back to the
// default plan; if that is missing too the ceiling is 0 and nothing is admitted.
func (c *PlanCatalog) MaxConcurrent(plan string) int {
	if c == nil {
		return 0
	}
	if p, ok := c.Plans[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return p.MaxConcurrentGenerations
	}
	if p, ok := c.Plans[c.DefaultPlan]; ok {
		return p.MaxConcurrentGenerations
	}
	return 0
}

func (c *PlanCatalog) Flow(flowID string) (FlowSpec, bool) {
	if c == nil {
		return FlowSpec{}, false
	}
	f, ok := c.Flows[strings.TrimSpace(flowID)]
	return f, ok
}

func (c *PlanCatalog) FlowIDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Flows))
	for id := range c.Flows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
