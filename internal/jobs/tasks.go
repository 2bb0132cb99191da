package jobs

// ScanPayload is the asynq task payload for a single index scan.
type ScanPayload struct {
	IndexID string `json:"index_id"`
}

// EventNotifier is implemented by the WebSocket hub; job handlers broadcast
// progress through it without depending on the API package directly.
type EventNotifier interface {
	Broadcast(event string, data interface{})
}

// RegisterHandlers wires every task type this service knows about into q's
// dispatch table.
func RegisterHandlers(q *Queue, h *ScanHandler) {
	q.RegisterHandler(TaskScanIndex, h)
}
