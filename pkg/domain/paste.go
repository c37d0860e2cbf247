package domain

// Paste is the persisted record for one paste. Timestamp is the
// creation/last-write instant in Unix milliseconds. Version is always
// written as 1; the history log tracks versions separately.
type Paste struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
}

// Actions recorded in the history log.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// HistoryEntry is one immutable audit record, appended as a single
// JSON line with flat scalar fields only.
type HistoryEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	CreatorIP string `json:"creator_ip"`
	Version   int    `json:"version"`
	Action    string `json:"action"`
	Deleted   bool   `json:"deleted"`
	Note      string `json:"note,omitempty"`
}
