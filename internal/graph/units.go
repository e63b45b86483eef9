package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/analyst/internal/domain"
)

// TopicLink is one proposed unit→topic attachment committed with the status
// transition.
type TopicLink struct {
	TopicID string
	Score   float64
}

// CreateUnit inserts a unit if no unit with the same dedup key exists.
// Returns false without error when the key is already present, which is what
// makes concurrent duplicate submissions collapse to one node.
func (s *Store) CreateUnit(ctx context.Context, unit *domain.ContentUnit) (bool, error) {
	query := s.db.Rebind(`
		INSERT INTO content_units (
			id, title, summary, body, source, external_id, dedup_key,
			tier, status, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query,
		unit.ID,
		unit.Title,
		unit.Summary,
		unit.Body,
		unit.Source,
		unit.ExternalID,
		unit.DedupKey,
		unit.Tier,
		unit.Status,
		unit.PublishedAt,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create unit %s: %w", unit.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create unit %s: rows affected: %w", unit.ID, err)
	}
	return rows == 1, nil
}

// GetUnit loads one unit by id.
func (s *Store) GetUnit(ctx context.Context, id string) (*domain.ContentUnit, error) {
	var unit domain.ContentUnit
	query := s.db.Rebind(`SELECT * FROM content_units WHERE id = ?`)
	if err := s.db.GetContext(ctx, &unit, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get unit %s: %w", id, err)
	}
	return &unit, nil
}

// GetUnitByDedupKey loads one unit by its deduplication key.
func (s *Store) GetUnitByDedupKey(ctx context.Context, key string) (*domain.ContentUnit, error) {
	var unit domain.ContentUnit
	query := s.db.Rebind(`SELECT * FROM content_units WHERE dedup_key = ?`)
	if err := s.db.GetContext(ctx, &unit, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get unit by dedup key: %w", err)
	}
	return &unit, nil
}

// ListUnitsByStatus returns up to limit units in the given status, oldest
// first, so retries drain in arrival order.
func (s *Store) ListUnitsByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.ContentUnit, error) {
	var units []*domain.ContentUnit
	query := s.db.Rebind(`
		SELECT * FROM content_units
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &units, query, status, limit); err != nil {
		return nil, fmt.Errorf("list units by status %s: %w", status, err)
	}
	return units, nil
}

// ListUnits returns all units, optionally only those updated after since.
// Sync enumeration uses this; order is stable by id.
func (s *Store) ListUnits(ctx context.Context, since *time.Time) ([]*domain.ContentUnit, error) {
	var units []*domain.ContentUnit
	if since != nil {
		query := s.db.Rebind(`SELECT * FROM content_units WHERE updated_at > ? ORDER BY id`)
		if err := s.db.SelectContext(ctx, &units, query, *since); err != nil {
			return nil, fmt.Errorf("list units since %s: %w", since.Format(time.RFC3339), err)
		}
		return units, nil
	}
	if err := s.db.SelectContext(ctx, &units, `SELECT * FROM content_units ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// CountUnits returns the number of units on the replica.
func (s *Store) CountUnits(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM content_units`); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}

// UpsertUnit writes a unit verbatim, overwriting any existing row with the
// same id. Only the reconciler uses this path.
func (s *Store) UpsertUnit(ctx context.Context, unit *domain.ContentUnit) error {
	query := s.db.Rebind(`
		INSERT INTO content_units (
			id, title, summary, body, source, external_id, dedup_key,
			tier, status, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			body = excluded.body,
			source = excluded.source,
			external_id = excluded.external_id,
			dedup_key = excluded.dedup_key,
			tier = excluded.tier,
			status = excluded.status,
			published_at = excluded.published_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		unit.ID,
		unit.Title,
		unit.Summary,
		unit.Body,
		unit.Source,
		unit.ExternalID,
		unit.DedupKey,
		unit.Tier,
		unit.Status,
		unit.PublishedAt,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert unit %s: %w", unit.ID, err)
	}
	return nil
}

// CommitProcessing attaches the mapped topic links and advances the unit to
// processed in one transaction. The guarded UPDATE is the exactly-once
// mechanism: a concurrent caller that lost the race gets ErrAlreadyProcessed
// and no edges are written twice.
func (s *Store) CommitProcessing(ctx context.Context, unitID string, links []TopicLink) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit processing %s: begin tx: %w", unitID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	edgeQuery := tx.Rebind(`
		INSERT INTO edges (src_id, dst_id, kind, score, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (src_id, dst_id, kind) DO NOTHING`)
	for _, link := range links {
		if _, err = tx.ExecContext(ctx, edgeQuery, unitID, link.TopicID, domain.EdgeAbout, link.Score, now); err != nil {
			return fmt.Errorf("commit processing %s: link topic %s: %w", unitID, link.TopicID, err)
		}
	}

	statusQuery := tx.Rebind(`
		UPDATE content_units
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`)
	res, err := tx.ExecContext(ctx, statusQuery, domain.StatusProcessed, now, unitID, domain.StatusUnprocessed)
	if err != nil {
		return fmt.Errorf("commit processing %s: advance status: %w", unitID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit processing %s: rows affected: %w", unitID, err)
	}
	if rows == 0 {
		err = ErrAlreadyProcessed
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit processing %s: %w", unitID, err)
	}
	return nil
}
