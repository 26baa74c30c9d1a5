package mqtt

import "sync/atomic"

// statistics holds the internal atomic counters shared by the pipeline,
// dispatcher and service.
type statistics struct {
	messagesPublished atomic.Int64
	messagesReceived  atomic.Int64
	publishErrors     atomic.Int64
	droppedMessages   atomic.Int64
	batchedMessages   atomic.Int64
}

// Stats is a read-only snapshot of the messaging layer, consumed by external
// monitoring and the CLI.
type Stats struct {
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	MessagesPublished int64  `json:"messages_published"`
	MessagesReceived  int64  `json:"messages_received"`
	PublishErrors     int64  `json:"publish_errors"`
	DroppedMessages   int64  `json:"dropped_messages"`
	BatchedMessages   int64  `json:"batched_messages"`
	QueueSize         int    `json:"queue_size"`
	BatchQueueSize    int    `json:"batch_queue_size"`
	MaxQueueSize      int    `json:"max_queue_size"`
	LastKeepalive     int64  `json:"last_keepalive"`
}
