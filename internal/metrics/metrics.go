package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the Crowsnest service
type Metrics struct {
	// Ingestion metrics
	PostsIngested     *prometheus.CounterVec
	EntitiesExtracted *prometheus.CounterVec

	// Engagement tracking metrics
	EngagementSamples  prometheus.Counter
	EngagementDuration *prometheus.HistogramVec

	// Broadcast metrics
	HubConnections  prometheus.Gauge
	EventsPublished *prometheus.CounterVec

	// Kafka metrics
	KafkaMessages *prometheus.CounterVec
	KafkaDuration *prometheus.HistogramVec
}
