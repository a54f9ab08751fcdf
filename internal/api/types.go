package api

import (
	"fmt"
	"strings"
	"time"
)

// Operation kinds accepted by the sync upload endpoint.
const (
	OpAdd       = "ADD"
	OpRemove    = "REMOVE"
	OpUpdate    = "UPDATE"
	OpReorder   = "REORDER"
	OpMoveGroup = "MOVE_GROUP"
)

// Timestamp is a time.Time that tolerates the backend's timestamp formats:
// RFC3339 with or without a zone suffix. The backend emits naive UTC
// isoformat strings in some responses.
type Timestamp struct {
	time.Time
}

// timestampFormats lists accepted layouts in order of preference.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON parses a quoted timestamp string, treating zone-less values
// as UTC. Null and empty strings decode to the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range timestampFormats {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}

	return fmt.Errorf("api: unparseable timestamp %q", s)
}

// MarshalJSON emits RFC3339 UTC, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// Item is one watched instrument as returned by the backend.
type Item struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FundCode  string    `json:"fund_code"`
	FundName  string    `json:"fund_name"`
	GroupID   *string   `json:"group_id"`
	SortIndex int       `json:"sort_index"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// Group is a user-defined watchlist folder.
type Group struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	SortIndex int       `json:"sort_index"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Operation is one queued client mutation in the upload batch.
type Operation struct {
	ID              string    `json:"id"`
	OperationType   string    `json:"operation_type"`
	FundCode        string    `json:"fund_code"`
	FundName        *string   `json:"fund_name,omitempty"`
	GroupID         *string   `json:"group_id,omitempty"`
	SortIndex       *int      `json:"sort_index,omitempty"`
	ClientTimestamp Timestamp `json:"client_timestamp"`
	DeviceID        string    `json:"device_id"`
}

// SyncRequest is the upload request body: the full ordered operation batch
// plus the last known watermark.
type SyncRequest struct {
	Operations   []Operation `json:"operations"`
	LastSyncTime *Timestamp  `json:"last_sync_time,omitempty"`
}

// OperationResult is the server's per-code verdict for uploaded operations.
type OperationResult struct {
	Operation string `json:"operation"`
	FundCode  string `json:"fund_code"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// SyncResponse is the upload response: one result per distinct fund code.
type SyncResponse struct {
	Results []OperationResult `json:"results"`
}

// ChangesResponse is the incremental pull response: changed items and
// groups, plus the server's sync timestamp for the next watermark.
type ChangesResponse struct {
	Data     []Item    `json:"data"`
	Groups   []Group   `json:"groups"`
	SyncTime Timestamp `json:"sync_time"`
}

// CreateGroupRequest creates a watchlist group. Groups are never created
// optimistically — the server round-trips before the group is usable.
type CreateGroupRequest struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	SortIndex int    `json:"sort_index"`
}

// UpdateGroupRequest renames or restyles an existing group.
type UpdateGroupRequest struct {
	Name      *string `json:"name,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	Color     *string `json:"color,omitempty"`
	SortIndex *int    `json:"sort_index,omitempty"`
}

// GroupResponse wraps a single group returned by group CRUD endpoints.
type GroupResponse struct {
	Data Group `json:"data"`
}
