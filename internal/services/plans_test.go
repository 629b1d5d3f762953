package services

import "testing"

func TestParsePlanCatalog(t *testing.T) {
	raw := []byte(`
default_plan: Free
plans:
  free: {max_concurrent_generations: 1}
  Pro:  {max_concurrent_generations: 3}
  frozen: {max_concurrent_generations: 0}
flows:
  blog-post: {cost: 20, webhook_path: /webhook/blog-post}
`)
	c, err := ParsePlanCatalog(raw)
	if err != nil {
		t.Fatalf("ParsePlanCatalog: %v", err)
	}
	if got := c.MaxConcurrent("pro"); got != 3 {
		t.Fatalf("MaxConcurrent(pro): want=3 got=%d", got)
	}
	if got := c.MaxConcurrent("unknown"); got != 1 {
		t.Fatalf("MaxConcurrent(unknown): want=1 (default plan) got=%d", got)
	}
	if got := c.MaxConcurrent("frozen"); got != 0 {
		t.Fatalf("MaxConcurrent(frozen): want=0 got=%d", got)
	}
	f, ok := c.Flow("blog-post")
	if !ok || f.Cost != 20 || f.WebhookPath != "/webhook/blog-post" {
		t.Fatalf("Flow(blog-post): ok=%v got=%+v", ok, f)
	}
	if _, ok := c.Flow("missing"); ok {
		t.Fatalf("Flow(missing): expected not found")
	}
}

func TestParsePlanCatalogRejectsNegative(t *testing.T) {
	if _, err := ParsePlanCatalog([]byte("plans:\n  free: {max_concurrent_generations: -1}\n")); err == nil {
		t.Fatalf("expected error for negative ceiling")
	}
	if _, err := ParsePlanCatalog([]byte("flows:\n  x: {cost: -5}\n")); err == nil {
		t.Fatalf("expected error for negative cost")
	}
}

func TestDefaultPlanCatalog(t *testing.T) {
	c, err := LoadPlanCatalog("")
	if err != nil {
		t.Fatalf("LoadPlanCatalog: %v", err)
	}
	if c.MaxConcurrent("free") != 1 {
		t.Fatalf("default free ceiling: got=%d", c.MaxConcurrent("free"))
	}
	if len(c.FlowIDs()) == 0 {
		t.Fatalf("expected default flows")
	}
}
