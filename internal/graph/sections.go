package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/analyst/internal/domain"
)

// GetSection loads one section of a topic's analysis.
func (s *Store) GetSection(ctx context.Context, topicID string, section domain.Section) (*domain.SectionRecord, error) {
	var rec domain.SectionRecord
	query := s.db.Rebind(`SELECT * FROM topic_sections WHERE topic_id = ? AND section = ?`)
	if err := s.db.GetContext(ctx, &rec, query, topicID, section); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get section %s/%s: %w", topicID, section, err)
	}
	return &rec, nil
}

// ListSections returns every written section of one topic.
func (s *Store) ListSections(ctx context.Context, topicID string) ([]*domain.SectionRecord, error) {
	var recs []*domain.SectionRecord
	query := s.db.Rebind(`SELECT * FROM topic_sections WHERE topic_id = ? ORDER BY section`)
	if err := s.db.SelectContext(ctx, &recs, query, topicID); err != nil {
		return nil, fmt.Errorf("list sections for %s: %w", topicID, err)
	}
	return recs, nil
}

// ListAllSections returns sections across all topics, optionally only those
// rewritten after since.
func (s *Store) ListAllSections(ctx context.Context, since *time.Time) ([]*domain.SectionRecord, error) {
	var recs []*domain.SectionRecord
	if since != nil {
		query := s.db.Rebind(`
			SELECT * FROM topic_sections
			WHERE rewritten_at > ?
			ORDER BY topic_id, section`)
		if err := s.db.SelectContext(ctx, &recs, query, *since); err != nil {
			return nil, fmt.Errorf("list sections since %s: %w", since.Format(time.RFC3339), err)
		}
		return recs, nil
	}
	if err := s.db.SelectContext(ctx, &recs, `SELECT * FROM topic_sections ORDER BY topic_id, section`); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return recs, nil
}

// SetSection commits a finished rewrite: the section text plus its run
// metadata land in one transaction together with the topic's freshness
// timestamps. The pipeline calls this exactly once per run, after the quality
// loop has produced its final draft.
func (s *Store) SetSection(ctx context.Context, rec *domain.SectionRecord) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set section %s/%s: begin: %w", rec.TopicID, rec.Section, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := tx.Rebind(`
		INSERT INTO topic_sections (topic_id, section, text, rewritten_at, rounds, open_issues)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (topic_id, section) DO UPDATE SET
			text = excluded.text,
			rewritten_at = excluded.rewritten_at,
			rounds = excluded.rounds,
			open_issues = excluded.open_issues`)
	if _, err = tx.ExecContext(ctx, upsert,
		rec.TopicID, rec.Section, rec.Text, rec.RewrittenAt, rec.Rounds, rec.OpenIssues); err != nil {
		return fmt.Errorf("set section %s/%s: %w", rec.TopicID, rec.Section, err)
	}

	touch := tx.Rebind(`UPDATE topics SET last_updated = ?, last_analyzed = ? WHERE id = ?`)
	res, err := tx.ExecContext(ctx, touch, rec.RewrittenAt, rec.RewrittenAt, rec.TopicID)
	if err != nil {
		return fmt.Errorf("set section %s/%s: touch topic: %w", rec.TopicID, rec.Section, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set section %s/%s: rows affected: %w", rec.TopicID, rec.Section, err)
	}
	if rows == 0 {
		err = ErrNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("set section %s/%s: commit: %w", rec.TopicID, rec.Section, err)
	}
	return nil
}

// UpsertSection writes a section record verbatim without touching the topic's
// timestamps. Only the reconciler uses this path.
func (s *Store) UpsertSection(ctx context.Context, rec *domain.SectionRecord) error {
	query := s.db.Rebind(`
		INSERT INTO topic_sections (topic_id, section, text, rewritten_at, rounds, open_issues)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (topic_id, section) DO UPDATE SET
			text = excluded.text,
			rewritten_at = excluded.rewritten_at,
			rounds = excluded.rounds,
			open_issues = excluded.open_issues`)
	if _, err := s.db.ExecContext(ctx, query,
		rec.TopicID, rec.Section, rec.Text, rec.RewrittenAt, rec.Rounds, rec.OpenIssues); err != nil {
		return fmt.Errorf("upsert section %s/%s: %w", rec.TopicID, rec.Section, err)
	}
	return nil
}
