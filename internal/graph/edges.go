package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/analyst/internal/domain"
)

// AddEdge stores a typed edge. Symmetric kinds are canonicalized first, so
// adding (b, a, peers) and (a, b, peers) land on the same row. Returns false
// when the edge already existed.
func (s *Store) AddEdge(ctx context.Context, edge domain.Edge) (bool, error) {
	if !edge.Kind.Valid() {
		return false, fmt.Errorf("add edge: unknown kind %q", edge.Kind)
	}
	if edge.SrcID == "" || edge.DstID == "" {
		return false, fmt.Errorf("add edge: empty endpoint in %s -> %s", edge.SrcID, edge.DstID)
	}
	c := edge.Canonical()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := s.db.Rebind(`
		INSERT INTO edges (src_id, dst_id, kind, score, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (src_id, dst_id, kind) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query, c.SrcID, c.DstID, c.Kind, c.Score, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("add edge %s: %w", c.Key(), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add edge %s: rows affected: %w", c.Key(), err)
	}
	return rows == 1, nil
}

// UpsertEdge writes an edge verbatim, overwriting score and created_at on an
// existing row. Only the reconciler uses this path.
func (s *Store) UpsertEdge(ctx context.Context, edge domain.Edge) error {
	c := edge.Canonical()
	query := s.db.Rebind(`
		INSERT INTO edges (src_id, dst_id, kind, score, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (src_id, dst_id, kind) DO UPDATE SET
			score = excluded.score,
			created_at = excluded.created_at`)
	if _, err := s.db.ExecContext(ctx, query, c.SrcID, c.DstID, c.Kind, c.Score, c.CreatedAt); err != nil {
		return fmt.Errorf("upsert edge %s: %w", c.Key(), err)
	}
	return nil
}

// RemoveEdge deletes an edge. Symmetric kinds are canonicalized first, so
// removing either orientation removes the pair in one statement. Returns
// false when no such edge existed.
func (s *Store) RemoveEdge(ctx context.Context, srcID, dstID string, kind domain.EdgeKind) (bool, error) {
	c := domain.Edge{SrcID: srcID, DstID: dstID, Kind: kind}.Canonical()
	query := s.db.Rebind(`DELETE FROM edges WHERE src_id = ? AND dst_id = ? AND kind = ?`)
	res, err := s.db.ExecContext(ctx, query, c.SrcID, c.DstID, c.Kind)
	if err != nil {
		return false, fmt.Errorf("remove edge %s: %w", c.Key(), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove edge %s: rows affected: %w", c.Key(), err)
	}
	return rows > 0, nil
}

// HasEdge reports whether an edge exists, in either orientation for symmetric
// kinds.
func (s *Store) HasEdge(ctx context.Context, srcID, dstID string, kind domain.EdgeKind) (bool, error) {
	c := domain.Edge{SrcID: srcID, DstID: dstID, Kind: kind}.Canonical()
	var n int
	query := s.db.Rebind(`SELECT COUNT(*) FROM edges WHERE src_id = ? AND dst_id = ? AND kind = ?`)
	if err := s.db.GetContext(ctx, &n, query, c.SrcID, c.DstID, c.Kind); err != nil {
		return false, fmt.Errorf("has edge %s: %w", c.Key(), err)
	}
	return n > 0, nil
}

// GetEdge loads one edge as stored, in either orientation for symmetric
// kinds.
func (s *Store) GetEdge(ctx context.Context, srcID, dstID string, kind domain.EdgeKind) (*domain.Edge, error) {
	c := domain.Edge{SrcID: srcID, DstID: dstID, Kind: kind}.Canonical()
	var edge domain.Edge
	query := s.db.Rebind(`SELECT * FROM edges WHERE src_id = ? AND dst_id = ? AND kind = ?`)
	if err := s.db.GetContext(ctx, &edge, query, c.SrcID, c.DstID, c.Kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get edge %s: %w", c.Key(), err)
	}
	return &edge, nil
}

// ListEdges returns all edges as stored, optionally only those created after
// since.
func (s *Store) ListEdges(ctx context.Context, since *time.Time) ([]*domain.Edge, error) {
	var edges []*domain.Edge
	if since != nil {
		query := s.db.Rebind(`
			SELECT * FROM edges
			WHERE created_at > ?
			ORDER BY src_id, dst_id, kind`)
		if err := s.db.SelectContext(ctx, &edges, query, *since); err != nil {
			return nil, fmt.Errorf("list edges since %s: %w", since.Format(time.RFC3339), err)
		}
		return edges, nil
	}
	if err := s.db.SelectContext(ctx, &edges, `SELECT * FROM edges ORDER BY src_id, dst_id, kind`); err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return edges, nil
}

// ListTopicEdges returns the edges touching one topic, oriented from the
// topic's side: symmetric rows whose canonical order put the topic second are
// flipped on the way out.
func (s *Store) ListTopicEdges(ctx context.Context, topicID string) ([]*domain.Edge, error) {
	var edges []*domain.Edge
	query := s.db.Rebind(`
		SELECT * FROM edges
		WHERE src_id = ? OR dst_id = ?
		ORDER BY kind, src_id, dst_id`)
	if err := s.db.SelectContext(ctx, &edges, query, topicID, topicID); err != nil {
		return nil, fmt.Errorf("list edges for %s: %w", topicID, err)
	}
	for _, e := range edges {
		if e.Kind.Symmetric() && e.DstID == topicID {
			e.SrcID, e.DstID = e.DstID, e.SrcID
		}
	}
	return edges, nil
}

// CountEdges returns the number of stored edge rows.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM edges`); err != nil {
		return 0, fmt.Errorf("count edges: %w", err)
	}
	return n, nil
}

// UnitsLinkedSince returns ids of content units linked to a topic by an
// `about` edge created after since, oldest link first. The rewrite policy
// counts these against the section thresholds.
func (s *Store) UnitsLinkedSince(ctx context.Context, topicID string, since time.Time) ([]string, error) {
	var ids []string
	query := s.db.Rebind(`
		SELECT src_id FROM edges
		WHERE dst_id = ? AND kind = ? AND created_at > ?
		ORDER BY created_at, src_id`)
	if err := s.db.SelectContext(ctx, &ids, query, topicID, domain.EdgeAbout, since); err != nil {
		return nil, fmt.Errorf("units linked to %s: %w", topicID, err)
	}
	return ids, nil
}

// UnitsForTopic returns up to limit content units linked to a topic, newest
// publication first. This is the evidence pool handed to the agent pipeline.
func (s *Store) UnitsForTopic(ctx context.Context, topicID string, limit int) ([]*domain.ContentUnit, error) {
	var units []*domain.ContentUnit
	query := s.db.Rebind(`
		SELECT u.* FROM content_units u
		JOIN edges e ON e.src_id = u.id
		WHERE e.dst_id = ? AND e.kind = ?
		ORDER BY u.published_at DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &units, query, topicID, domain.EdgeAbout, limit); err != nil {
		return nil, fmt.Errorf("units for %s: %w", topicID, err)
	}
	return units, nil
}
