// Package worker consumes render requests from Redis Streams and publishes
// the rendered SQL back to the orchestrator.
//
// Each stream message carries a JSON data field:
//
//	{"execution_id": "exec-42", "node_id": "revenue",
//	 "config": {"domain": "orders", "query_type": "revenue_kpis",
//	            "params": {"start_date": "2024-01-01", "end_date": "2024-01-31"}}}
//
// When execution_id is set, the execution inputs stored by the orchestrator
// are merged under the request params. Rendered queries go to RESULT_STREAM,
// failures to RESULT_STREAM + ".errors" with the error kind and parameter.
// Every message is acknowledged.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	redisClient := redis.NewClient(&redis.Options{...})
//	svc, _ := service.New(cat, serviceConfig, metrics, logger)
//
//	worker := worker.NewWorker(cfg, redisClient, svc, store.NewRedisStateStore(redisClient, logger), logger)
//	if err := worker.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer worker.Stop()
//
// Health checks and metrics are provided via a separate HTTP server:
//
//	healthServer := worker.NewHealthServer(8082, redisClient, svc, prometheus.DefaultGatherer, logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
