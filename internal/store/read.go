package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReadActivity returns one activity by ID, or ErrNotFound.
func (s *Store) ReadActivity(ctx context.Context, id string) (Activity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, view, kind, engine_version, journal_version
		FROM activities
		WHERE id = ?
	`, id)

	var a Activity
	err := row.Scan(&a.Seq, &a.ID, &a.View, &a.Kind, &a.EngineVersion, &a.JournalVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Activity{}, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Activity{}, fmt.Errorf("read activity %s: %w", id, err)
	}
	return a, nil
}

// ReadActivities returns the activities recorded for view, or for every
// view when view is empty, in recording order.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ReadActivities(ctx context.Context, view string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, view, kind, engine_version, journal_version
		FROM activities
		WHERE ? = '' OR view = ?
		ORDER BY seq ASC
	`, view, view)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.Seq, &a.ID, &a.View, &a.Kind, &a.EngineVersion, &a.JournalVersion); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

// ReadPages returns the pages of one activity in recording order.
//
// Returns an empty slice (not nil) if the activity has no pages.
func (s *Store) ReadPages(ctx context.Context, activityID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, activity_id, namespace, continue_in, continue_out, items, digest
		FROM pages
		WHERE activity_id = ?
		ORDER BY seq ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	pages := []Page{}
	for rows.Next() {
		var p Page
		var itemsJSON string
		if err := rows.Scan(&p.Seq, &p.ActivityID, &p.Namespace, &p.ContinueIn, &p.ContinueOut, &itemsJSON, &p.Digest); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items, err := unmarshalItems(itemsJSON)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p.Seq, err)
		}
		p.Items = items
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
