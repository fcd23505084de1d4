// Package kafka publishes job lifecycle events to Kafka with segmentio/kafka-go.
//
// The Component owns a Producer whose EventSink forwards every job
// transition as a JSON message keyed by job id, so all events of one job
// land on the same partition in order.
//
//	kafka:
//	  enabled: true
//	  brokers: ["localhost:9092"]
//	  topic: "mediascribe.job-events"
package kafka
