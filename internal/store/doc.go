// Package store loads DAGO graph execution state from Redis.
//
// The orchestrator keeps each execution's state as JSON under
// graph:state:<execution_id>. The worker reads the execution inputs and
// merges them under the parameters of a render request.
//
// Example usage:
//
//	states := store.NewRedisStateStore(redisClient, logger)
//	inputs, err := states.Inputs(ctx, "exec-42")
//	if errors.Is(err, store.ErrStateNotFound) {
//	    ...
//	}
package store
