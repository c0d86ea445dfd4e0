package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/catalog"
	"github.com/aescanero/dago-node-sqltemplate/internal/config"
	"github.com/aescanero/dago-node-sqltemplate/internal/query"
	"github.com/aescanero/dago-node-sqltemplate/internal/service"
	"github.com/aescanero/dago-node-sqltemplate/internal/store"
)

const (
	workStream   = "sqltemplate.work"
	resultStream = "sqltemplate.rendered"
)

type recordingRenderer struct {
	mu     sync.Mutex
	reqs   []service.Request
	result *service.Result
	err    error
}

func (r *recordingRenderer) Render(_ context.Context, req service.Request) (*service.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.result, r.err
}

func newTestWorker(t *testing.T, renderer Renderer, withStore bool) (*Worker, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		WorkerID:      "test-worker",
		StreamKey:     workStream,
		ConsumerGroup: "sqltemplate-workers",
		ResultStream:  resultStream,
		BlockTime:     20 * time.Millisecond,
	}

	var inputs store.InputLoader
	if withStore {
		inputs = store.NewRedisStateStore(client, zap.NewNop())
	}
	w := NewWorker(cfg, client, renderer, inputs, zap.NewNop())
	require.NoError(t, w.ensureConsumerGroup())
	return w, client, mr
}

func message(t *testing.T, request WorkRequest) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(request)
	require.NoError(t, err)
	return redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": string(data)}}
}

func readEvents[T any](t *testing.T, client *redis.Client, stream string) []T {
	t.Helper()
	messages, err := client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)

	events := make([]T, 0, len(messages))
	for _, m := range messages {
		var event T
		require.NoError(t, json.Unmarshal([]byte(m.Values["data"].(string)), &event))
		events = append(events, event)
	}
	return events
}

func TestWorker_EndToEnd(t *testing.T) {
	cat, err := catalog.LoadDefault()
	require.NoError(t, err)
	svc, err := service.New(cat, service.Config{
		DefaultDataset:   "analytics",
		GuardsEnabled:    true,
		CaptionsEnabled:  true,
		MaxDateRangeDays: 365,
	}, service.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	require.NoError(t, err)

	w, client, _ := newTestWorker(t, svc, true)
	require.NoError(t, w.Start())

	data, err := json.Marshal(WorkRequest{
		ExecutionID: "exec-1",
		NodeID:      "kpis",
		Config: NodeConfig{
			Domain:    "orders",
			QueryType: "revenue_kpis",
			Params:    map[string]interface{}{"start_date": "2024-01-01", "end_date": "2024-01-31"},
		},
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: workStream, Values: map[string]interface{}{"data": string(data)}}).Err())

	assert.Eventually(t, func() bool {
		n, err := client.XLen(ctx, resultStream).Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	events := readEvents[RenderedEvent](t, client, resultStream)
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "exec-1", event.ExecutionID)
	assert.Equal(t, "kpis", event.NodeID)
	assert.Equal(t, "orders", event.Domain)
	assert.Equal(t, "revenue_kpis", event.QueryType)
	assert.Contains(t, event.SQL, "FROM `analytics.orders`")
	assert.Equal(t, "Revenue KPIs (completed orders), 2024-01-01 to 2024-01-31", event.Caption)
	assert.NotEmpty(t, event.SourceHash)
	_, err = uuid.Parse(event.RenderID)
	assert.NoError(t, err)
}

func TestWorker_MergesExecutionInputs(t *testing.T) {
	renderer := &recordingRenderer{result: &service.Result{Domain: "orders", QueryType: "daily_revenue", SQL: "SELECT 1"}}
	w, _, mr := newTestWorker(t, renderer, true)
	require.NoError(t, mr.Set("graph:state:exec-7",
		`{"graph_id":"exec-7","inputs":{"start_date":"2024-01-01","end_date":"2024-01-31","limit":10}}`))

	w.handleMessage(message(t, WorkRequest{
		ExecutionID: "exec-7",
		Config: NodeConfig{
			Domain:    "orders",
			QueryType: "daily_revenue",
			Params:    map[string]interface{}{"limit": 50},
		},
	}))

	require.Len(t, renderer.reqs, 1)
	req := renderer.reqs[0]
	assert.Equal(t, "orders", req.Domain)
	assert.Equal(t, "daily_revenue", req.QueryType)
	assert.Equal(t, "2024-01-01", req.Params["start_date"])
	assert.Equal(t, "2024-01-31", req.Params["end_date"])
	assert.Equal(t, float64(50), req.Params["limit"])
}

func TestWorker_MissingStateUsesRequestParams(t *testing.T) {
	renderer := &recordingRenderer{result: &service.Result{SQL: "SELECT 1"}}
	w, client, _ := newTestWorker(t, renderer, true)

	w.handleMessage(message(t, WorkRequest{
		ExecutionID: "unknown",
		Config:      NodeConfig{Domain: "orders", QueryType: "daily_revenue", Params: map[string]interface{}{"dataset": "a"}},
	}))

	require.Len(t, renderer.reqs, 1)
	assert.Equal(t, map[string]interface{}{"dataset": "a"}, renderer.reqs[0].Params)
	assert.Len(t, readEvents[RenderedEvent](t, client, resultStream), 1)
}

func TestWorker_RenderErrorPublished(t *testing.T) {
	renderer := &recordingRenderer{err: &query.RenderError{Kind: query.UnsafeIdentifier, Name: "dataset", Value: "x; DROP"}}
	w, client, _ := newTestWorker(t, renderer, false)

	w.handleMessage(message(t, WorkRequest{
		ExecutionID: "exec-9",
		NodeID:      "daily",
		Config:      NodeConfig{Domain: "orders", QueryType: "daily_revenue"},
	}))

	assert.Empty(t, readEvents[RenderedEvent](t, client, resultStream))
	events := readEvents[ErrorEvent](t, client, resultStream+".errors")
	require.Len(t, events, 1)
	assert.Equal(t, "exec-9", events[0].ExecutionID)
	assert.Equal(t, "daily", events[0].NodeID)
	assert.Equal(t, "unsafe_identifier", events[0].ErrorKind)
	assert.Equal(t, "dataset", events[0].Parameter)
	assert.Contains(t, events[0].Error, "render failed")
}

func TestWorker_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing data", map[string]interface{}{"other": "x"}},
		{"bad json", map[string]interface{}{"data": "{"}},
		{"missing domain", map[string]interface{}{"data": `{"execution_id":"e","config":{}}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := &recordingRenderer{}
			w, client, _ := newTestWorker(t, renderer, false)

			w.handleMessage(redis.XMessage{ID: "1-0", Values: tt.values})

			assert.Empty(t, renderer.reqs)
			events := readEvents[ErrorEvent](t, client, resultStream+".errors")
			require.Len(t, events, 1)
			assert.Equal(t, "invalid_request", events[0].ErrorKind)
		})
	}
}

func TestWorker_EnsureConsumerGroupTwice(t *testing.T) {
	w, _, _ := newTestWorker(t, &recordingRenderer{}, false)
	assert.NoError(t, w.ensureConsumerGroup())
}

func TestParseWorkRequest(t *testing.T) {
	req, err := parseWorkRequest(map[string]interface{}{
		"data": `{"execution_id":"e1","node_id":"n1","config":{"domain":"clickstream","query_type":"funnel","params":{"funnel_steps":["view","cart"]}}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", req.ExecutionID)
	assert.Equal(t, "clickstream", req.Config.Domain)
	assert.Equal(t, []interface{}{"view", "cart"}, req.Config.Params["funnel_steps"])

	_, err = parseWorkRequest(map[string]interface{}{"data": 42})
	assert.True(t, errors.Is(err, errInvalidRequest))
}
