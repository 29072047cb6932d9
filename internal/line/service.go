package line

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backend-opentransit/internal/db"
	"backend-opentransit/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

const lineColumns = `id, name, COALESCE(description,''), status, merged_into_id, ST_AsText(path), created_at, updated_at`

func (s *Service) Create(ctx context.Context, input Line) (Line, error) {
	input.ID = uuid.NewString()
	input.Status = StatusPending

	wkt, err := encodePath(input.Path)
	if err != nil {
		return Line{}, err
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO lines (id, name, description, status, path)
		VALUES ($1,$2,$3,$4, ST_GeomFromEWKT($5))
		RETURNING created_at, updated_at
	`, input.ID, input.Name, input.Description, input.Status, wkt)
	if err := row.Scan(&input.CreatedAt, &input.UpdatedAt); err != nil {
		return Line{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (Line, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+lineColumns+`
		FROM lines WHERE id=$1
	`, id)
	ln, err := scanLine(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, ErrNotFound
	}
	return ln, err
}

// List returns lines filtered by status unless includeAll is set, in which
// case every line is returned regardless of lifecycle state.
func (s *Service) List(ctx context.Context, status Status, includeAll bool, skip, limit int) ([]Line, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if includeAll {
		rows, err = s.db.Query(ctx, `
			SELECT `+lineColumns+`
			FROM lines
			ORDER BY created_at
			OFFSET $1 LIMIT $2
		`, skip, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+lineColumns+`
			FROM lines
			WHERE status=$1
			ORDER BY created_at
			OFFSET $2 LIMIT $3
		`, status, skip, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		ln, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}
	return lines, rows.Err()
}

// Update applies a partial update, writing only the supplied columns. Status
// may only move between pending and approved: merged is set exclusively by
// Merge, and a merged line never leaves that state, so merged_into_id cannot
// diverge from the status field.
func (s *Service) Update(ctx context.Context, id string, patch UpdateInput) (Line, error) {
	ln, err := s.Get(ctx, id)
	if err != nil {
		return Line{}, err
	}

	sets := []string{"updated_at=now()"}
	args := []any{ln.ID}

	if patch.Name != nil {
		ln.Name = *patch.Name
		args = append(args, ln.Name)
		sets = append(sets, fmt.Sprintf("name=$%d", len(args)))
	}
	if patch.Description != nil {
		ln.Description = *patch.Description
		args = append(args, ln.Description)
		sets = append(sets, fmt.Sprintf("description=$%d", len(args)))
	}
	if patch.Status != nil {
		if ln.Status == StatusMerged {
			return Line{}, &AlreadyMergedError{ID: ln.ID, MergedInto: deref(ln.MergedIntoID)}
		}
		switch *patch.Status {
		case StatusPending, StatusApproved:
			ln.Status = *patch.Status
		case StatusMerged:
			return Line{}, ErrStatusReserved
		default:
			return Line{}, fmt.Errorf("unknown status %q", *patch.Status)
		}
		args = append(args, ln.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if patch.Path != nil {
		ln.Path = *patch.Path
		wkt, err := encodePath(ln.Path)
		if err != nil {
			return Line{}, err
		}
		args = append(args, wkt)
		sets = append(sets, fmt.Sprintf("path=ST_GeomFromEWKT($%d)", len(args)))
	}

	row := s.db.QueryRow(ctx,
		`UPDATE lines SET `+strings.Join(sets, ", ")+` WHERE id=$1 RETURNING updated_at`,
		args...)
	if err := row.Scan(&ln.UpdatedAt); err != nil {
		return Line{}, err
	}
	return ln, nil
}

// Delete removes a line. Sessions that pointed at it keep their own state
// but lose the reference; both steps commit together.
func (s *Service) Delete(ctx context.Context, id string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE recording_sessions SET line_id=NULL WHERE line_id=$1`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM lines WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *Service) Approve(ctx context.Context, id string) (Line, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE lines SET status='approved', updated_at=now()
		WHERE id=$1 AND status='pending'
	`, id)
	if err != nil {
		return Line{}, err
	}
	if tag.RowsAffected() == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return Line{}, err
		}
		return Line{}, &InvalidStateError{Current: current.Status, Required: StatusPending}
	}
	return s.Get(ctx, id)
}

// Merge re-points every recording session of sourceID at targetID and marks
// the source merged, as one transaction. It returns the target's state after
// the merge.
func (s *Service) Merge(ctx context.Context, sourceID, targetID string) (Line, error) {
	if sourceID == targetID {
		return Line{}, ErrSelfMerge
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Line{}, err
	}
	defer tx.Rollback(ctx)

	sourceStatus, sourceMergedInto, err := lockLine(ctx, tx, sourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, fmt.Errorf("source line %s: %w", sourceID, ErrNotFound)
	}
	if err != nil {
		return Line{}, err
	}

	targetStatus, targetMergedInto, err := lockLine(ctx, tx, targetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, fmt.Errorf("target line %s: %w", targetID, ErrNotFound)
	}
	if err != nil {
		return Line{}, err
	}

	if sourceStatus == StatusMerged {
		return Line{}, &AlreadyMergedError{ID: sourceID, MergedInto: deref(sourceMergedInto)}
	}
	if targetStatus == StatusMerged {
		return Line{}, &TargetMergedError{ID: targetID, MergedInto: deref(targetMergedInto)}
	}

	if _, err := tx.Exec(ctx, `UPDATE recording_sessions SET line_id=$2 WHERE line_id=$1`, sourceID, targetID); err != nil {
		return Line{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE lines SET status='merged', merged_into_id=$2, updated_at=now()
		WHERE id=$1
	`, sourceID, targetID); err != nil {
		return Line{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Line{}, err
	}
	return s.Get(ctx, targetID)
}

// Nearby returns lines whose path lies within radiusM meters of the point.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusM float64) ([]Line, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+lineColumns+`
		FROM lines
		WHERE path IS NOT NULL
		  AND ST_DWithin(path::geography, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY created_at
	`, lng, lat, radiusM)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		ln, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}
	return lines, rows.Err()
}

func lockLine(ctx context.Context, tx pgx.Tx, id string) (Status, *string, error) {
	var (
		status     string
		mergedInto *string
	)
	err := tx.QueryRow(ctx, `SELECT status, merged_into_id FROM lines WHERE id=$1 FOR UPDATE`, id).
		Scan(&status, &mergedInto)
	return Status(status), mergedInto, err
}

func scanLine(row pgx.Row) (Line, error) {
	var (
		ln     Line
		status string
		wkt    *string
	)
	if err := row.Scan(&ln.ID, &ln.Name, &ln.Description, &status, &ln.MergedIntoID, &wkt, &ln.CreatedAt, &ln.UpdatedAt); err != nil {
		return Line{}, err
	}
	ln.Status = Status(status)
	if wkt != nil {
		points, err := geo.DecodeLineString(*wkt)
		if err != nil {
			return Line{}, err
		}
		ln.Path = geo.Pairs(points)
	}
	return ln, nil
}

func encodePath(path [][]float64) (*string, error) {
	if len(path) == 0 {
		return nil, nil
	}
	points, err := geo.FromPairs(path)
	if err != nil {
		return nil, err
	}
	wkt, err := geo.EncodeLineString(points)
	if err != nil {
		return nil, err
	}
	return &wkt, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
