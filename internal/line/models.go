package line

import "time"

// Status is the approval lifecycle state of a line. All writes go through
// the lifecycle methods; merged is only ever set by Merge, which is also the
// only writer of MergedIntoID.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusMerged   Status = "merged"
)

type Line struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Status       Status      `json:"status"`
	MergedIntoID *string     `json:"merged_into_id,omitempty"`
	Path         [][]float64 `json:"path,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Status      *Status      `json:"status"`
	Path        *[][]float64 `json:"path"`
}
