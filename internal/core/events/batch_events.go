package events

// Event types published by the batch façade.
const (
	EventBatchActionSucceeded = "batch.action.succeeded"
	EventBatchActionFailed    = "batch.action.failed"
	EventBatchFileDownloaded  = "batch.file.downloaded"
)

// NewBatchActionSucceeded records a mutation the upstream API accepted.
func NewBatchActionSucceeded(batchID, action, message string) BaseEvent {
	return NewBaseEvent(EventBatchActionSucceeded, map[string]interface{}{
		"batch_id": batchID,
		"action":   action,
		"message":  message,
	})
}

// NewBatchActionFailed records a mutation or download that settled in error.
func NewBatchActionFailed(batchID, action, message string) BaseEvent {
	return NewBaseEvent(EventBatchActionFailed, map[string]interface{}{
		"batch_id": batchID,
		"action":   action,
		"message":  message,
	})
}

// NewBatchFileDownloaded records a completed bank-file download.
func NewBatchFileDownloaded(batchID, fileName, path string) BaseEvent {
	return NewBaseEvent(EventBatchFileDownloaded, map[string]interface{}{
		"batch_id":  batchID,
		"file_name": fileName,
		"path":      path,
	})
}
