package catalog

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-node-sqltemplate/internal/query"
)

func TestLoadDefault(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	names := make([]string, 0)
	for _, d := range c.Domains() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ab_tests", "clickstream", "orders", "recommendations"}, names)

	expected := map[string][]string{
		"orders":          {"revenue_kpis", "daily_revenue", "cohort", "product_performance", "category_performance"},
		"clickstream":     {"session_metrics", "funnel", "traffic_sources_with_conversions", "device_segmentation", "page_engagement"},
		"ab_tests":        {"test_list", "test_assignments", "test_summary", "test_metrics", "daily_metrics", "segment_metrics"},
		"recommendations": {"engagement_metrics", "revenue_impact", "widget_comparison", "algorithm_comparison", "coverage_diversity", "cold_start"},
	}

	for _, d := range c.Domains() {
		t.Run(d.Name, func(t *testing.T) {
			tmpl, err := query.Parse(d.Name, d.Source(), d.Options()...)
			require.NoError(t, err)
			assert.Equal(t, expected[d.Name], tmpl.QueryTypes())

			for _, qt := range tmpl.QueryTypes() {
				assert.Contains(t, d.Captions, qt, "caption for %s", qt)
			}
		})
	}
}

func TestDomain_Resolve(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	orders, ok := c.Domain("orders")
	require.True(t, ok)

	ctx, err := orders.Resolve(map[string]any{
		"dataset":    "analytics",
		"start_date": "2024-01-01",
		"end_date":   "2024-01-31",
		"limit":      "25",
		"extra":      true,
	})
	require.NoError(t, err)

	assert.Equal(t, query.KindDate, ctx.Lookup("start_date").Kind())
	assert.Equal(t, query.KindInteger, ctx.Lookup("limit").Kind())
	assert.Equal(t, "25", ctx.Lookup("limit").Text())
	assert.Equal(t, "MONTH", ctx.Lookup("cohort_period").Text())
	assert.Equal(t, "completed", ctx.Lookup("status").Text())
	assert.Equal(t, query.KindBoolean, ctx.Lookup("extra").Kind())
}

func TestDomain_ResolveErrors(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	orders, _ := c.Domain("orders")

	base := func() map[string]any {
		return map[string]any{"dataset": "analytics", "start_date": "2024-01-01", "end_date": "2024-01-31"}
	}

	params := base()
	params["limit"] = "ten"
	_, err = orders.Resolve(params)
	assert.True(t, errors.Is(err, query.ErrInvalidNumeric))

	params = base()
	params["start_date"] = "January"
	_, err = orders.Resolve(params)
	assert.True(t, errors.Is(err, query.ErrTypeMismatch))

	params = base()
	delete(params, "dataset")
	_, err = orders.Resolve(params)
	require.Error(t, err)
	var re *query.RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, query.MissingParameter, re.Kind)
	assert.Equal(t, "dataset", re.Name)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		files    map[string]string
	}{
		{
			name:     "missing template file",
			manifest: "domains:\n  - name: a\n    template: a.sql\n",
		},
		{
			name:     "unknown kind",
			manifest: "domains:\n  - name: a\n    template: a.sql\n    parameters:\n      - name: x\n        kind: map\n",
			files:    map[string]string{"a.sql": "SELECT 1"},
		},
		{
			name:     "bad default",
			manifest: "domains:\n  - name: a\n    template: a.sql\n    parameters:\n      - name: x\n        kind: integer\n        default: many\n",
			files:    map[string]string{"a.sql": "SELECT 1"},
		},
		{
			name:     "duplicate domain",
			manifest: "domains:\n  - name: a\n    template: a.sql\n  - name: a\n    template: a.sql\n",
			files:    map[string]string{"a.sql": "SELECT 1"},
		},
		{
			name:     "guard without expression",
			manifest: "guards:\n  - name: g\ndomains: []\n",
		},
		{
			name:     "invalid yaml",
			manifest: "domains: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{ManifestName: &fstest.MapFile{Data: []byte(tt.manifest)}}
			for name, body := range tt.files {
				fsys[name] = &fstest.MapFile{Data: []byte(body)}
			}
			_, err := Load(fsys)
			assert.Error(t, err)
		})
	}
}

func TestCatalog_Guards(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	orders, _ := c.Domain("orders")
	names := make([]string, 0)
	for _, g := range c.Guards(orders) {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"date_order", "date_range", "positive_limit", "cohort_period"}, names)
}
