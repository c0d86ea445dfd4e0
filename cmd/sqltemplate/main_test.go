package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-node-sqltemplate/internal/service"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRender(t *testing.T) {
	out, err := run(t, "render", "--dataset", "analytics",
		"--domain", "orders", "--query-type", "revenue_kpis",
		"-p", "start_date=2024-01-01", "-p", "end_date=2024-01-31", "--caption")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "-- Revenue KPIs (completed orders), 2024-01-01 to 2024-01-31\nSELECT"))
	assert.Contains(t, out, "FROM `analytics.orders`")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestRender_ListParameter(t *testing.T) {
	out, err := run(t, "render", "--domain", "clickstream", "--query-type", "funnel",
		"-p", "dataset=analytics", "-p", "start_date=2024-01-01", "-p", "end_date=2024-01-31",
		"-p", "funnel_steps=view, cart")
	require.NoError(t, err)
	assert.Contains(t, out, "IN ('view', 'cart')")
	assert.NotContains(t, out, "-- ")
}

func TestRender_JSON(t *testing.T) {
	out, err := run(t, "render", "--domain", "ab_tests", "--query-type", "test_assignments",
		"--params", `{"dataset": "analytics", "test_id": "checkout_v2"}`, "--json")
	require.NoError(t, err)

	var result service.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "test_assignments", result.QueryType)
	assert.Contains(t, result.SQL, "WHERE test_id = 'checkout_v2'")
	assert.Equal(t, "Assignments for checkout_v2", result.Caption)
}

func TestRender_NoGuards(t *testing.T) {
	args := []string{"render", "--dataset", "analytics", "--domain", "orders", "--query-type", "daily_revenue",
		"-p", "start_date=2024-02-01", "-p", "end_date=2024-01-01"}

	_, err := run(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guard_violation")

	_, err = run(t, append(args, "--no-guards")...)
	assert.NoError(t, err)
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{"missing domain flag", []string{"render", "--query-type", "x"}, "domain"},
		{"unknown query type", []string{"render", "--dataset", "a", "--domain", "orders", "--query-type", "refunds",
			"-p", "start_date=2024-01-01", "-p", "end_date=2024-01-31"}, "unknown_query_type"},
		{"unsafe dataset", []string{"render", "--dataset", "a; DROP TABLE x", "--domain", "orders", "--query-type", "daily_revenue",
			"-p", "start_date=2024-01-01", "-p", "end_date=2024-01-31"}, "unsafe_identifier"},
		{"bad param", []string{"render", "--domain", "orders", "-p", "start_date"}, "expected name=value"},
		{"bad params json", []string{"render", "--domain", "orders", "--params", "{"}, "invalid --params"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Empty(t, out)
		})
	}
}

func TestList(t *testing.T) {
	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "DOMAIN")
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "revenue_kpis, daily_revenue")
	assert.Contains(t, out, "recommendations")

	out, err = run(t, "list", "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "cohort_period")
	assert.Contains(t, out, "MONTH")

	_, err = run(t, "list", "inventory")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Equal(t, "catalog is valid: 4 domains, 22 query types\n", out)
}

func TestCatalogFromDirectory(t *testing.T) {
	dir := t.TempDir()
	manifest := `version: 1
domains:
  - name: inventory
    template: inventory.sql
    parameters:
      - name: dataset
        kind: string
        required: true
      - name: limit
        kind: integer
        default: 10
`
	source := "{% if query_type == 'stock' %}\nSELECT sku FROM `{{ dataset }}.stock` LIMIT {{ limit | default }}\n" +
		"{% elif query_type == 'by_region' %}\nSELECT sku FROM `{{ dataset }}.stock` WHERE region = '{{ region }}'\n{% endif %}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.sql"), []byte(source), 0o644))

	out, err := run(t, "render", "--catalog", dir, "--dataset", "wh", "--domain", "inventory", "--query-type", "stock")
	require.NoError(t, err)
	assert.Equal(t, "SELECT sku FROM `wh.stock` LIMIT 10\n", out)

	out, err = run(t, "render", "--catalog", dir, "--dataset", "wh", "--domain", "inventory", "--query-type", "by_region",
		"-p", `region=eu\west`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT sku FROM `wh.stock` WHERE region = 'eu\\\\west'\n", out)

	out, err = run(t, "list", "--catalog", dir, "inventory")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^region\s+-\s+false\s+not declared in the catalog$`, out)

	out, err = run(t, "validate", "--catalog", dir)
	require.NoError(t, err)
	assert.Equal(t, "catalog is valid: 1 domains, 2 query types\n", out)
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		pairs    []string
		expected map[string]interface{}
		wantErr  bool
	}{
		{"empty", "", nil, map[string]interface{}{}, false},
		{"pairs", "", []string{"a=1", "b=x=y"}, map[string]interface{}{"a": "1", "b": "x=y"}, false},
		{"empty value", "", []string{"a="}, map[string]interface{}{"a": ""}, false},
		{"pair overrides json", `{"a": 2, "c": true}`, []string{"a=3"}, map[string]interface{}{"a": "3", "c": true}, false},
		{"missing equals", "", []string{"a"}, nil, true},
		{"empty name", "", []string{"=1"}, nil, true},
		{"json array", `[1]`, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := parseParams(tt.json, tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, params)
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sqltemplate version dev (built unknown)\n", out)
}
