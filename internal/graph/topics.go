package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/analyst/internal/domain"
)

// CreateTopic inserts a topic if the id is free. Returns false when a topic
// with the same id already exists.
func (s *Store) CreateTopic(ctx context.Context, topic *domain.Topic) (bool, error) {
	if !domain.IsTopicID(topic.ID) {
		return false, fmt.Errorf("create topic: malformed id %q", topic.ID)
	}

	query := s.db.Rebind(`
		INSERT INTO topics (
			id, name, category, level, parent_id, status, stance,
			last_updated, last_analyzed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query,
		topic.ID,
		topic.Name,
		topic.Category,
		topic.Level,
		topic.ParentID,
		topic.Status,
		topic.Stance,
		topic.LastUpdated,
		topic.LastAnalyzed,
		topic.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create topic %s: %w", topic.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create topic %s: rows affected: %w", topic.ID, err)
	}
	return rows == 1, nil
}

// GetTopic loads one topic by id.
func (s *Store) GetTopic(ctx context.Context, id string) (*domain.Topic, error) {
	var topic domain.Topic
	query := s.db.Rebind(`SELECT * FROM topics WHERE id = ?`)
	if err := s.db.GetContext(ctx, &topic, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get topic %s: %w", id, err)
	}
	return &topic, nil
}

// ListTopics returns all topics, optionally only those updated after since.
func (s *Store) ListTopics(ctx context.Context, since *time.Time) ([]*domain.Topic, error) {
	var topics []*domain.Topic
	if since != nil {
		query := s.db.Rebind(`SELECT * FROM topics WHERE last_updated > ? ORDER BY id`)
		if err := s.db.SelectContext(ctx, &topics, query, *since); err != nil {
			return nil, fmt.Errorf("list topics since %s: %w", since.Format(time.RFC3339), err)
		}
		return topics, nil
	}
	if err := s.db.SelectContext(ctx, &topics, `SELECT * FROM topics ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// ListActiveTopics returns up to limit active topics, most recently updated
// first, for the scheduler's rewrite probes.
func (s *Store) ListActiveTopics(ctx context.Context, limit int) ([]*domain.Topic, error) {
	var topics []*domain.Topic
	query := s.db.Rebind(`
		SELECT * FROM topics
		WHERE status = ?
		ORDER BY last_updated DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &topics, query, domain.TopicActive, limit); err != nil {
		return nil, fmt.Errorf("list active topics: %w", err)
	}
	return topics, nil
}

// CountTopics returns the number of topics on the replica.
func (s *Store) CountTopics(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM topics`); err != nil {
		return 0, fmt.Errorf("count topics: %w", err)
	}
	return n, nil
}

// SetTopicStatus flips a topic between active and hidden.
func (s *Store) SetTopicStatus(ctx context.Context, id string, status domain.TopicStatus) error {
	query := s.db.Rebind(`UPDATE topics SET status = ?, last_updated = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set topic %s status: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set topic %s status: rows affected: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertTopic writes a topic verbatim, overwriting any existing row with the
// same id. Only the reconciler uses this path.
func (s *Store) UpsertTopic(ctx context.Context, topic *domain.Topic) error {
	query := s.db.Rebind(`
		INSERT INTO topics (
			id, name, category, level, parent_id, status, stance,
			last_updated, last_analyzed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			level = excluded.level,
			parent_id = excluded.parent_id,
			status = excluded.status,
			stance = excluded.stance,
			last_updated = excluded.last_updated,
			last_analyzed = excluded.last_analyzed,
			created_at = excluded.created_at`)

	_, err := s.db.ExecContext(ctx, query,
		topic.ID,
		topic.Name,
		topic.Category,
		topic.Level,
		topic.ParentID,
		topic.Status,
		topic.Stance,
		topic.LastUpdated,
		topic.LastAnalyzed,
		topic.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert topic %s: %w", topic.ID, err)
	}
	return nil
}
