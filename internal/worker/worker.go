package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/config"
	"github.com/aescanero/dago-node-sqltemplate/internal/service"
	"github.com/aescanero/dago-node-sqltemplate/internal/store"
)

// Renderer renders one query request
type Renderer interface {
	Render(ctx context.Context, req service.Request) (*service.Result, error)
}

// Worker consumes render requests from a Redis stream
type Worker struct {
	id            string
	config        *config.Config
	redisClient   *redis.Client
	renderer      Renderer
	inputs        store.InputLoader
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	streamKey     string
	consumerGroup string
	resultStream  string
}

// NewWorker creates a new worker. inputs may be nil, in which case requests
// are rendered from their own parameters only.
func NewWorker(
	cfg *config.Config,
	redisClient *redis.Client,
	renderer Renderer,
	inputs store.InputLoader,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		redisClient:   redisClient,
		renderer:      renderer,
		inputs:        inputs,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
	}
}

// Start creates the consumer group and starts the processing loop
func (w *Worker) Start() error {
	w.logger.Info("starting sqltemplate worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.wg.Add(1)
	go w.processWork()

	w.logger.Info("sqltemplate worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the loop and waits for the in-flight message
func (w *Worker) Stop() error {
	w.logger.Info("stopping sqltemplate worker", zap.String("worker_id", w.id))

	w.cancel()
	w.wg.Wait()

	w.logger.Info("sqltemplate worker stopped", zap.String("worker_id", w.id))
	return nil
}

func (w *Worker) ensureConsumerGroup() error {
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
		}

		streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
			Group:    w.consumerGroup,
			Consumer: w.id,
			Streams:  []string{w.streamKey, ">"},
			Count:    1,
			Block:    w.config.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to read from stream", zap.Error(err))
			select {
			case <-w.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				w.handleMessage(message)
			}
		}
	}
}

// handleMessage renders one request and publishes the outcome. The message
// is acknowledged whatever happens; failures go to the error stream.
func (w *Worker) handleMessage(message redis.XMessage) {
	// A message already read is finished even when shutdown starts
	ctx := context.WithoutCancel(w.ctx)
	messageID := message.ID
	w.logger.Info("processing render request", zap.String("message_id", messageID))

	request, err := parseWorkRequest(message.Values)
	if err != nil {
		w.logger.Error("failed to parse work request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.publishError(ctx, &WorkRequest{}, err)
		w.acknowledgeMessage(ctx, messageID)
		return
	}

	if err := w.processRenderRequest(ctx, request); err != nil {
		w.logger.Error("failed to process render request",
			zap.String("message_id", messageID),
			zap.String("execution_id", request.ExecutionID),
			zap.Error(err),
		)
		w.publishError(ctx, request, err)
	}

	w.acknowledgeMessage(ctx, messageID)
}

// WorkRequest is the payload of a stream message's data field
type WorkRequest struct {
	ExecutionID string     `json:"execution_id"`
	NodeID      string     `json:"node_id"`
	Config      NodeConfig `json:"config"`
}

// NodeConfig selects the query to render
type NodeConfig struct {
	Domain    string                 `json:"domain"`
	QueryType string                 `json:"query_type"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// RenderedEvent is published to the result stream
type RenderedEvent struct {
	RenderID    string    `json:"render_id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Domain      string    `json:"domain"`
	QueryType   string    `json:"query_type"`
	SQL         string    `json:"sql"`
	Caption     string    `json:"caption,omitempty"`
	SourceHash  string    `json:"source_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorEvent is published to the error stream
type ErrorEvent struct {
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Error       string    `json:"error"`
	ErrorKind   string    `json:"error_kind"`
	Parameter   string    `json:"parameter,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

var errInvalidRequest = errors.New("invalid work request")

func parseWorkRequest(values map[string]interface{}) (*WorkRequest, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid 'data' field", errInvalidRequest)
	}

	var request WorkRequest
	if err := json.Unmarshal([]byte(dataStr), &request); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if request.Config.Domain == "" {
		return nil, fmt.Errorf("%w: config.domain is required", errInvalidRequest)
	}

	return &request, nil
}

func (w *Worker) processRenderRequest(ctx context.Context, request *WorkRequest) error {
	params, err := w.requestParams(ctx, request)
	if err != nil {
		return err
	}

	result, err := w.renderer.Render(ctx, service.Request{
		Domain:    request.Config.Domain,
		QueryType: request.Config.QueryType,
		Params:    params,
	})
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if err := w.publishResult(ctx, request, result); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

// requestParams merges the execution inputs under the request parameters
func (w *Worker) requestParams(ctx context.Context, request *WorkRequest) (map[string]interface{}, error) {
	params := make(map[string]interface{})

	if request.ExecutionID != "" && w.inputs != nil {
		inputs, err := w.inputs.Inputs(ctx, request.ExecutionID)
		switch {
		case errors.Is(err, store.ErrStateNotFound):
			w.logger.Debug("no graph state for execution",
				zap.String("execution_id", request.ExecutionID))
		case err != nil:
			return nil, fmt.Errorf("failed to load inputs: %w", err)
		default:
			for k, v := range inputs {
				params[k] = v
			}
		}
	}

	for k, v := range request.Config.Params {
		params[k] = v
	}
	return params, nil
}

func (w *Worker) publishResult(ctx context.Context, request *WorkRequest, result *service.Result) error {
	event := RenderedEvent{
		RenderID:    uuid.NewString(),
		ExecutionID: request.ExecutionID,
		NodeID:      request.NodeID,
		Domain:      result.Domain,
		QueryType:   result.QueryType,
		SQL:         result.SQL,
		Caption:     result.Caption,
		SourceHash:  result.SourceHash,
		Timestamp:   time.Now().UTC(),
	}

	if err := w.publish(ctx, w.resultStream, event); err != nil {
		return err
	}

	w.logger.Info("published rendered query",
		zap.String("render_id", event.RenderID),
		zap.String("execution_id", request.ExecutionID),
		zap.String("domain", result.Domain),
		zap.String("query_type", result.QueryType),
	)
	return nil
}

func (w *Worker) publishError(ctx context.Context, request *WorkRequest, err error) {
	kind := service.ErrorKind(err)
	if errors.Is(err, errInvalidRequest) {
		kind = "invalid_request"
	}

	event := ErrorEvent{
		ExecutionID: request.ExecutionID,
		NodeID:      request.NodeID,
		Error:       err.Error(),
		ErrorKind:   kind,
		Parameter:   service.ErrorParameter(err),
		Timestamp:   time.Now().UTC(),
	}

	if publishErr := w.publish(ctx, w.resultStream+".errors", event); publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

func (w *Worker) publish(ctx context.Context, stream string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = w.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

func (w *Worker) acknowledgeMessage(ctx context.Context, messageID string) {
	err := w.redisClient.XAck(ctx, w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
