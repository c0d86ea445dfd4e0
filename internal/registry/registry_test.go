package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/query"
)

const ordersSource = `{% if query_type == 'revenue_kpis' %}
SELECT SUM(total) FROM ` + "`{{ dataset }}.orders`" + `
{% elif query_type == 'daily_revenue' %}
SELECT DATE(created_at), SUM(total) FROM ` + "`{{ dataset }}.orders`" + ` GROUP BY 1 LIMIT {{ limit | default }}
{% endif %}
`

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(zap.NewNop())
	err := r.Register("orders", ordersSource, query.WithDefaults(map[string]query.Value{"limit": query.Integer(100)}))
	require.NoError(t, err)
	return r
}

func TestRegistry_Render(t *testing.T) {
	r := newRegistry(t)

	rendered, err := r.Render("orders", "revenue_kpis", query.Context{"dataset": query.String("analytics")})
	require.NoError(t, err)

	assert.Equal(t, "SELECT SUM(total) FROM `analytics.orders`\n", rendered.SQL)
	assert.Equal(t, "orders", rendered.Domain)
	assert.Equal(t, "revenue_kpis", rendered.QueryType)
	assert.Equal(t, HashSource("orders", ordersSource), rendered.SourceHash)
}

func TestRegistry_RenderArgumentOverridesContext(t *testing.T) {
	r := newRegistry(t)

	ctx := query.Context{"dataset": query.String("analytics"), "query_type": query.String("revenue_kpis")}
	rendered, err := r.Render("orders", "daily_revenue", ctx)
	require.NoError(t, err)

	assert.Equal(t, "daily_revenue", rendered.QueryType)
	assert.Contains(t, rendered.SQL, "LIMIT 100")
	assert.Equal(t, "revenue_kpis", ctx.Lookup("query_type").Text())
}

func TestRegistry_RenderContext(t *testing.T) {
	r := newRegistry(t)

	rendered, err := r.RenderContext("orders", query.Context{
		"dataset":    query.String("analytics"),
		"query_type": query.String("daily_revenue"),
	})
	require.NoError(t, err)
	assert.Equal(t, "daily_revenue", rendered.QueryType)

	_, err = r.RenderContext("orders", query.Context{"dataset": query.String("analytics")})
	assert.True(t, errors.Is(err, query.ErrMissingParameter))
}

func TestRegistry_UnknownQueryType(t *testing.T) {
	r := newRegistry(t)

	rendered, err := r.Render("orders", "nonexistent", query.Context{"dataset": query.String("analytics")})
	require.Error(t, err)
	assert.Nil(t, rendered)
	assert.True(t, errors.Is(err, query.ErrUnknownQueryType))

	var re *query.RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "nonexistent", re.Value)
}

func TestRegistry_UnknownDomain(t *testing.T) {
	r := newRegistry(t)

	_, err := r.Render("payments", "x", query.Context{})
	assert.True(t, errors.Is(err, ErrUnknownDomain))

	_, err = r.QueryTypes("payments")
	assert.True(t, errors.Is(err, ErrUnknownDomain))

	_, err = r.SourceHash("payments")
	assert.True(t, errors.Is(err, ErrUnknownDomain))
}

func TestRegistry_RegisterRejectsInvalidSource(t *testing.T) {
	r := New(zap.NewNop())

	err := r.Register("broken", "{% if query_type == 'a' %}SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, query.ErrUnterminatedBlock))
	assert.Empty(t, r.Domains())
}

func TestRegistry_ReRegisterInvalidatesCache(t *testing.T) {
	r := newRegistry(t)
	before, err := r.SourceHash("orders")
	require.NoError(t, err)

	updated := "{% if query_type == 'revenue_kpis' %}SELECT 2{% endif %}"
	require.NoError(t, r.Register("orders", updated))

	after, err := r.SourceHash("orders")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	rendered, err := r.Render("orders", "revenue_kpis", query.Context{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", rendered.SQL)

	r.mu.RLock()
	assert.Len(t, r.cache, 1)
	r.mu.RUnlock()
}

func TestRegistry_ClearCacheRecompiles(t *testing.T) {
	r := newRegistry(t)
	assert.True(t, r.cached("orders"))

	r.ClearCache()
	assert.False(t, r.cached("orders"))

	_, err := r.Render("orders", "revenue_kpis", query.Context{"dataset": query.String("analytics")})
	require.NoError(t, err)
	assert.True(t, r.cached("orders"))
}

func TestRegistry_QueryTypesAndDomains(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register("clickstream", "{% if query_type == 'funnel' %}x{% endif %}"))

	types, err := r.QueryTypes("orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"revenue_kpis", "daily_revenue"}, types)
	assert.Equal(t, []string{"clickstream", "orders"}, r.Domains())
}

func TestHashSource(t *testing.T) {
	a := HashSource("orders", "SELECT 1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashSource("orders", "SELECT 1"))
	assert.NotEqual(t, a, HashSource("clickstream", "SELECT 1"))
	assert.NotEqual(t, a, HashSource("orders", "SELECT 2"))
	assert.NotEqual(t, HashSource("ab", "c"), HashSource("a", "bc"))
}

func TestRegistry_ConcurrentRender(t *testing.T) {
	r := newRegistry(t)
	r.ClearCache()

	const workers = 32
	results := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				r.ClearCache()
			}
			rendered, err := r.Render("orders", "daily_revenue", query.Context{"dataset": query.String("analytics")})
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = rendered.SQL
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}
