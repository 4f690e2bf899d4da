// Package config loads the nodeflow configuration.
//
// A Loader starts from Default(), overlays each file layer (".json" through
// encoding/json, ".yaml" and ".yml" through gopkg.in/yaml.v3; unknown fields
// are rejected), then applies NODEFLOW_* environment overrides and finally
// validates:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/local.json")
//	cfg, err := loader.Load()
//
// Durations are written as strings such as "250ms", "5s" or "2d".
//
// Validate reports every problem in one error classified as invalid, so
// errors.IsInvalid(err) holds for any configuration failure.
//
// Environment overrides:
//
//	NODEFLOW_PIPELINE_NAME, NODEFLOW_PIPELINE_SOURCE, NODEFLOW_PIPELINE_POLICY
//	NODEFLOW_NATS_URL, NODEFLOW_NATS_SUBJECT, NODEFLOW_NATS_JETSTREAM
//	NODEFLOW_NATS_USERNAME, NODEFLOW_NATS_PASSWORD, NODEFLOW_NATS_TOKEN
//	NODEFLOW_METRICS_PORT, NODEFLOW_WEBSOCKET_PORT, NODEFLOW_FILE_PATH
//
// SafeConfig guards a configuration for concurrent readers; Get returns deep
// copies.
package config
