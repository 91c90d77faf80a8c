package store

import (
	"context"
	"fmt"

	"github.com/roach88/listsync/internal/object"
)

// Activity kinds.
const (
	KindInitial = "initial"
	KindRefresh = "refresh"
)

// Activity is one recorded initial fetch or refresh sweep.
type Activity struct {
	Seq            int64  `json:"seq"`
	ID             string `json:"id"`
	View           string `json:"view"`
	Kind           string `json:"kind"`
	EngineVersion  string `json:"engine_version"`
	JournalVersion string `json:"journal_version"`
}

// Page is one recorded page.
type Page struct {
	Seq         int64            `json:"seq"`
	ActivityID  string           `json:"activity_id"`
	Namespace   string           `json:"namespace"`
	ContinueIn  string           `json:"continue_in"`
	ContinueOut string           `json:"continue_out"`
	Items       []object.Tracked `json:"items"`
	Digest      string           `json:"digest"`
}

// WriteActivity inserts an activity record.
// Uses ON CONFLICT(id) DO NOTHING - re-recording an activity is a no-op.
// Empty version fields default to the running engine's versions.
func (s *Store) WriteActivity(ctx context.Context, a Activity) error {
	if a.EngineVersion == "" {
		a.EngineVersion = object.EngineVersion
	}
	if a.JournalVersion == "" {
		a.JournalVersion = object.JournalVersion
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, view, kind, engine_version, journal_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.View, a.Kind, a.EngineVersion, a.JournalVersion)
	if err != nil {
		return fmt.Errorf("write activity %s: %w", a.ID, err)
	}
	return nil
}

// WritePage inserts a page record and computes its digest.
// Uses ON CONFLICT DO NOTHING - the first recording of a position wins.
// The activity must have been written first (foreign key constraint).
func (s *Store) WritePage(ctx context.Context, p Page) error {
	itemsJSON, err := marshalItems(p.Items)
	if err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	digest, err := object.Digest(p.Items)
	if err != nil {
		return fmt.Errorf("write page: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (activity_id, namespace, continue_in, continue_out, items, digest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, p.ActivityID, p.Namespace, p.ContinueIn, p.ContinueOut, itemsJSON, digest)
	if err != nil {
		return fmt.Errorf("write page for %s: %w", p.ActivityID, err)
	}
	return nil
}
