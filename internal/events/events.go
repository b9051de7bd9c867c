package events

// Event type names sent to websocket subscribers.
const (
	TypeProgressUpdate = "progress.update"
	TypeListUpdate     = "list.update"
	TypeSyncStarted    = "sync.started"
	TypeSyncCompleted  = "sync.completed"
	TypeSyncFailed     = "sync.failed"
)

// ProgressEvent announces a change to a user's watch progress.
type ProgressEvent struct {
	Type            string `json:"type"`
	UserID          string `json:"user_id"`
	MALID           int    `json:"mal_id"`
	Status          string `json:"status"`
	EpisodesWatched int    `json:"episodes_watched"`
}

// SyncEvent announces lifecycle transitions of a reconciliation job.
type SyncEvent struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	UserID  string `json:"user_id"`
	Message string `json:"message,omitempty"`
}
