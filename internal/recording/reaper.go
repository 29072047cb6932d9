package recording

import (
	"context"
	"errors"
	"log"
	"time"
)

// Sweep abandons every in-progress session whose last activity predates the
// cutoff. The cutoff is computed once for the whole run, so sessions that
// become active while the sweep executes are never caught by it. Each
// candidate is handled in its own transaction; one failure is logged and
// reported without stopping the rest.
func (s *Service) Sweep(ctx context.Context, inactiveFor time.Duration) (SweepReport, error) {
	cutoff := time.Now().UTC().Add(-inactiveFor)
	report := SweepReport{CheckedBefore: cutoff, SessionIDs: []string{}}

	rows, err := s.db.Query(ctx, `
		SELECT id FROM recording_sessions
		WHERE status='in_progress' AND last_activity_at < $1
		ORDER BY last_activity_at
	`, cutoff)
	if err != nil {
		return SweepReport{}, err
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return SweepReport{}, err
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		return SweepReport{}, err
	}

	for _, id := range candidates {
		abandoned, err := s.abandonStale(ctx, id, cutoff)
		switch {
		case err != nil:
			log.Printf("abandon session %s: %v", id, err)
			report.FailedIDs = append(report.FailedIDs, id)
		case abandoned:
			report.SessionIDs = append(report.SessionIDs, id)
			report.AbandonedCount++
		}
	}
	return report, nil
}

// abandonStale re-checks the staleness predicate under lock before acting:
// a batch upload landing after the candidate query refreshes
// last_activity_at, and the session is then skipped, not failed. ended_at is
// set to the session's last activity, not the sweep time.
func (s *Service) abandonStale(ctx context.Context, sessionID string, cutoff time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	current, lastActivity, err := lockSession(ctx, tx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current != StatusInProgress || !lastActivity.Before(cutoff) {
		return false, nil
	}

	wkt, err := computedPathWKT(ctx, tx, sessionID)
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE recording_sessions
		SET status='abandoned', ended_at=last_activity_at, computed_path=ST_GeomFromEWKT($2)
		WHERE id=$1
	`, sessionID, wkt); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
