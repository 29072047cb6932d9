package recording

import "time"

// Status is the lifecycle state of a recording session. in_progress is the
// only state that accepts data; completed/cancelled/discarded are final;
// abandoned can be resumed back to in_progress.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusAbandoned  Status = "abandoned"
	StatusDiscarded  Status = "discarded"
)

type Session struct {
	ID             string      `json:"id"`
	LineID         *string     `json:"line_id,omitempty"`
	Status         Status      `json:"status"`
	Direction      string      `json:"direction,omitempty"`
	DeviceModel    string      `json:"device_model,omitempty"`
	OSVersion      string      `json:"os_version,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	ComputedPath   [][]float64 `json:"computed_path,omitempty"`
}

type LocationPoint struct {
	ID                 int64     `json:"id"`
	SessionID          string    `json:"session_id"`
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           *float64  `json:"altitude,omitempty"`
	Speed              *float64  `json:"speed,omitempty"`
	Bearing            *float64  `json:"bearing,omitempty"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
	VerticalAccuracy   *float64  `json:"vertical_accuracy,omitempty"`
}

type SensorReading struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	AccelX          *float64  `json:"accel_x,omitempty"`
	AccelY          *float64  `json:"accel_y,omitempty"`
	AccelZ          *float64  `json:"accel_z,omitempty"`
	GyroX           *float64  `json:"gyro_x,omitempty"`
	GyroY           *float64  `json:"gyro_y,omitempty"`
	GyroZ           *float64  `json:"gyro_z,omitempty"`
	Pressure        *float64  `json:"pressure,omitempty"`
	MagneticHeading *float64  `json:"magnetic_heading,omitempty"`
}

// EndRequest selects how a finished session resolves to a line: an existing
// line id, a (possibly new) line name, or neither to discard the trip.
type EndRequest struct {
	LineID   *string `json:"line_id"`
	LineName *string `json:"line_name"`
}

type BatchResult struct {
	Added          int       `json:"added"`
	SessionID      string    `json:"session_id"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

// SweepReport is the audit record of one reaper run. Failed sessions stayed
// in_progress and will be retried on the next sweep.
type SweepReport struct {
	CheckedBefore  time.Time `json:"checked_before"`
	AbandonedCount int       `json:"abandoned_count"`
	SessionIDs     []string  `json:"session_ids"`
	FailedIDs      []string  `json:"failed_ids,omitempty"`
}
