package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aescanero/dago-libs/pkg/domain"
	"github.com/aescanero/dago-libs/pkg/domain/state"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrStateNotFound is returned when an execution has no stored state
var ErrStateNotFound = errors.New("graph state not found")

const keyPrefix = "graph:state:"

// InputLoader returns the inputs of a graph execution
type InputLoader interface {
	Inputs(ctx context.Context, executionID string) (map[string]interface{}, error)
}

// RedisStateStore reads and writes graph state stored as JSON under graph:state:<id>
type RedisStateStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStateStore creates a new Redis state store
func NewRedisStateStore(client *redis.Client, logger *zap.Logger) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		logger: logger,
	}
}

func stateKey(executionID string) string {
	return keyPrefix + executionID
}

// Load returns the raw state of an execution
func (s *RedisStateStore) Load(ctx context.Context, executionID string) (state.State, error) {
	data, err := s.client.Get(ctx, stateKey(executionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, executionID)
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var st state.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return st, nil
}

// GraphState loads the state of an execution as a domain.GraphState
func (s *RedisStateStore) GraphState(ctx context.Context, executionID string) (*domain.GraphState, error) {
	st, err := s.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	var graphState domain.GraphState
	if err := json.Unmarshal(data, &graphState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to GraphState: %w", err)
	}
	if graphState.GraphID == "" {
		graphState.GraphID = executionID
	}
	return &graphState, nil
}

// Inputs returns the execution inputs, used as render parameters
func (s *RedisStateStore) Inputs(ctx context.Context, executionID string) (map[string]interface{}, error) {
	graphState, err := s.GraphState(ctx, executionID)
	if err != nil {
		return nil, err
	}

	inputs := make(map[string]interface{}, len(graphState.Inputs))
	for k, v := range graphState.Inputs {
		inputs[k] = v
	}
	s.logger.Debug("loaded execution inputs",
		zap.String("execution_id", executionID),
		zap.Int("inputs", len(inputs)))
	return inputs, nil
}
