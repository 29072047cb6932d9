package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-opentransit/internal/db"
	"backend-opentransit/internal/shared/geo"
	"backend-opentransit/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	db  db.Querier
	hub *stream.Hub
}

func NewService(db db.Querier, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

const sessionColumns = `id, line_id, status, COALESCE(direction,''), COALESCE(device_model,''), ` +
	`COALESCE(os_version,''), COALESCE(notes,''), started_at, ended_at, last_activity_at, ST_AsText(computed_path)`

// Start opens a session with device metadata only; the line is chosen when
// the session ends, never during recording.
func (s *Service) Start(ctx context.Context, input Session) (Session, error) {
	input.ID = uuid.NewString()
	input.Status = StatusInProgress
	input.LineID = nil

	row := s.db.QueryRow(ctx, `
		INSERT INTO recording_sessions (id, status, direction, device_model, os_version, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING started_at, last_activity_at
	`, input.ID, input.Status, input.Direction, input.DeviceModel, input.OSVersion, input.Notes)
	if err := row.Scan(&input.StartedAt, &input.LastActivityAt); err != nil {
		return Session{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM recording_sessions WHERE id=$1
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

func (s *Service) List(ctx context.Context, lineID *string, status *Status, skip, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM recording_sessions`
	var (
		conds []string
		args  []any
	)
	if lineID != nil {
		args = append(args, *lineID)
		conds = append(conds, fmt.Sprintf("line_id=$%d", len(args)))
	}
	if status != nil {
		args = append(args, *status)
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, skip)
	query += fmt.Sprintf(" ORDER BY started_at DESC OFFSET $%d", len(args))
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// End terminates an in-progress session. The computed path is derived from
// the collected points (when there are at least two) and the session resolves
// to a line by id, by name (creating a pending line), or to discarded. All of
// it commits as one transaction.
func (s *Service) End(ctx context.Context, sessionID string, req EndRequest) (Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	current, _, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if current != StatusInProgress {
		return Session{}, &InvalidStateError{Current: current, Required: StatusInProgress}
	}

	wkt, err := computedPathWKT(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}

	status := StatusDiscarded
	var lineID *string

	switch {
	case req.LineID != nil:
		var (
			lineStatus string
			mergedInto *string
		)
		// lock the line so a concurrent merge cannot mark it merged
		// between this check and the commit
		err := tx.QueryRow(ctx, `SELECT status, merged_into_id FROM lines WHERE id=$1 FOR UPDATE`, *req.LineID).
			Scan(&lineStatus, &mergedInto)
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("line %s: %w", *req.LineID, ErrLineNotFound)
		}
		if err != nil {
			return Session{}, err
		}
		if lineStatus == "merged" {
			return Session{}, &MergedLineError{LineID: *req.LineID, MergedInto: strDeref(mergedInto)}
		}
		lineID = req.LineID
		status = StatusCompleted

	case strings.TrimSpace(strDeref(req.LineName)) != "":
		name := strings.TrimSpace(*req.LineName)
		newID := uuid.NewString()
		if _, err := tx.Exec(ctx, `INSERT INTO lines (id, name, status) VALUES ($1,$2,'pending')`, newID, name); err != nil {
			return Session{}, err
		}
		lineID = &newID
		status = StatusCompleted
	}

	if _, err := tx.Exec(ctx, `
		UPDATE recording_sessions
		SET line_id=$2, status=$3, ended_at=now(), computed_path=ST_GeomFromEWKT($4)
		WHERE id=$1
	`, sessionID, lineID, status, wkt); err != nil {
		return Session{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	return s.Get(ctx, sessionID)
}

func (s *Service) Cancel(ctx context.Context, sessionID string) (Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	current, _, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if current != StatusInProgress {
		return Session{}, &InvalidStateError{Current: current, Required: StatusInProgress}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE recording_sessions SET status='cancelled', ended_at=now() WHERE id=$1
	`, sessionID); err != nil {
		return Session{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	return s.Get(ctx, sessionID)
}

// Resume reopens an abandoned session, e.g. after a long tunnel with no
// signal. The next termination recomputes the path and overwrites whatever
// the abandonment stored.
func (s *Service) Resume(ctx context.Context, sessionID string) (Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	current, _, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if current != StatusAbandoned {
		return Session{}, &InvalidStateError{Current: current, Required: StatusAbandoned}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE recording_sessions
		SET status='in_progress', ended_at=NULL, last_activity_at=now()
		WHERE id=$1
	`, sessionID); err != nil {
		return Session{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	return s.Get(ctx, sessionID)
}

// AddPoints appends a batch of GPS points in submitted order and refreshes
// the session's activity timestamp; a single upload is a batch of one.
func (s *Service) AddPoints(ctx context.Context, sessionID string, points []LocationPoint) (BatchResult, error) {
	if len(points) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	for i := range points {
		if err := geo.ValidatePoint(points[i].Longitude, points[i].Latitude); err != nil {
			return BatchResult{}, err
		}
		if b := points[i].Bearing; b != nil && (*b < 0 || *b >= 360) {
			return BatchResult{}, fmt.Errorf("%w: bearing must be in [0,360), got %v", ErrOutOfRange, *b)
		}
		points[i].SessionID = sessionID
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	defer tx.Rollback(ctx)

	current, _, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return BatchResult{}, err
	}
	if current != StatusInProgress {
		return BatchResult{}, &InvalidStateError{Current: current, Required: StatusInProgress}
	}

	for _, p := range points {
		if _, err := tx.Exec(ctx, `
			INSERT INTO location_points
				(session_id, ts, latitude, longitude, altitude, speed, bearing, horizontal_accuracy, vertical_accuracy, point)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, ST_SetSRID(ST_MakePoint($4,$3), 4326))
		`, p.SessionID, p.Timestamp, p.Latitude, p.Longitude, p.Altitude, p.Speed, p.Bearing, p.HorizontalAccuracy, p.VerticalAccuracy); err != nil {
			return BatchResult{}, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE recording_sessions SET last_activity_at=now() WHERE id=$1`, sessionID); err != nil {
		return BatchResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, err
	}

	if s.hub != nil {
		for _, p := range points {
			payload, _ := json.Marshal(p)
			s.hub.Broadcast(sessionID, payload)
		}
	}

	return BatchResult{
		Added:          len(points),
		SessionID:      sessionID,
		FirstTimestamp: points[0].Timestamp,
		LastTimestamp:  points[len(points)-1].Timestamp,
	}, nil
}

func (s *Service) Points(ctx context.Context, sessionID string, skip, limit int) ([]LocationPoint, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, ts, latitude, longitude, altitude, speed, bearing, horizontal_accuracy, vertical_accuracy
		FROM location_points
		WHERE session_id=$1
		ORDER BY ts
		OFFSET $2 LIMIT $3
	`, sessionID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []LocationPoint
	for rows.Next() {
		var p LocationPoint
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Timestamp, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.Speed, &p.Bearing, &p.HorizontalAccuracy, &p.VerticalAccuracy); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// AddReadings appends a batch of sensor readings, same contract as AddPoints.
func (s *Service) AddReadings(ctx context.Context, sessionID string, readings []SensorReading) (BatchResult, error) {
	if len(readings) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	for i := range readings {
		if h := readings[i].MagneticHeading; h != nil && (*h < 0 || *h >= 360) {
			return BatchResult{}, fmt.Errorf("%w: magnetic heading must be in [0,360), got %v", ErrOutOfRange, *h)
		}
		readings[i].SessionID = sessionID
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	defer tx.Rollback(ctx)

	current, _, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return BatchResult{}, err
	}
	if current != StatusInProgress {
		return BatchResult{}, &InvalidStateError{Current: current, Required: StatusInProgress}
	}

	for _, r := range readings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sensor_readings
				(session_id, ts, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, pressure, magnetic_heading)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, r.SessionID, r.Timestamp, r.AccelX, r.AccelY, r.AccelZ, r.GyroX, r.GyroY, r.GyroZ, r.Pressure, r.MagneticHeading); err != nil {
			return BatchResult{}, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE recording_sessions SET last_activity_at=now() WHERE id=$1`, sessionID); err != nil {
		return BatchResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Added:          len(readings),
		SessionID:      sessionID,
		FirstTimestamp: readings[0].Timestamp,
		LastTimestamp:  readings[len(readings)-1].Timestamp,
	}, nil
}

func (s *Service) Readings(ctx context.Context, sessionID string, skip, limit int) ([]SensorReading, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, ts, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z, pressure, magnetic_heading
		FROM sensor_readings
		WHERE session_id=$1
		ORDER BY ts
		OFFSET $2 LIMIT $3
	`, sessionID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []SensorReading
	for rows.Next() {
		var r SensorReading
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Timestamp, &r.AccelX, &r.AccelY, &r.AccelZ,
			&r.GyroX, &r.GyroY, &r.GyroZ, &r.Pressure, &r.MagneticHeading); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func lockSession(ctx context.Context, tx pgx.Tx, id string) (Status, time.Time, error) {
	var (
		status       string
		lastActivity time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT status, last_activity_at FROM recording_sessions WHERE id=$1 FOR UPDATE
	`, id).Scan(&status, &lastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return Status(status), lastActivity, nil
}

// computedPathWKT derives the session's path from its points in timestamp
// order, or nil when fewer than two exist. Recomputing from the same points
// always yields the same geometry; the stored path is a cache, not truth.
func computedPathWKT(ctx context.Context, tx pgx.Tx, sessionID string) (*string, error) {
	rows, err := tx.Query(ctx, `
		SELECT longitude, latitude FROM location_points
		WHERE session_id=$1
		ORDER BY ts
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lon, &p.Lat); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, nil
	}

	wkt, err := geo.EncodeLineString(points)
	if err != nil {
		return nil, err
	}
	return &wkt, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess   Session
		status string
		wkt    *string
	)
	if err := row.Scan(&sess.ID, &sess.LineID, &status, &sess.Direction, &sess.DeviceModel,
		&sess.OSVersion, &sess.Notes, &sess.StartedAt, &sess.EndedAt, &sess.LastActivityAt, &wkt); err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	if wkt != nil {
		points, err := geo.DecodeLineString(*wkt)
		if err != nil {
			return Session{}, err
		}
		sess.ComputedPath = geo.Pairs(points)
	}
	return sess, nil
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
