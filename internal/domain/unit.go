// Package domain holds the shared types of the analyst graph: content units,
// topics, edges and tracker events.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status is a content unit's processing state. It moves from unprocessed to
// processed exactly once and never back.
type Status string

const (
	// StatusUnprocessed marks a unit that has not completed graph processing.
	StatusUnprocessed Status = "unprocessed"
	// StatusProcessed marks a unit whose pipeline reached its terminal step.
	StatusProcessed Status = "processed"
)

// Tier is a unit's priority/visibility classification.
type Tier string

const (
	TierHeadline   Tier = "headline"
	TierStandard   Tier = "standard"
	TierBackground Tier = "background"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierHeadline, TierStandard, TierBackground:
		return true
	}
	return false
}

// ContentUnit is one ingested source item.
type ContentUnit struct {
	ID          string    `db:"id"           json:"id"`
	Title       string    `db:"title"        json:"title"`
	Summary     string    `db:"summary"      json:"summary"`
	Body        string    `db:"body"         json:"body"`
	Source      string    `db:"source"       json:"source"`
	ExternalID  string    `db:"external_id"  json:"external_id,omitempty"`
	DedupKey    string    `db:"dedup_key"    json:"dedup_key"`
	Tier        Tier      `db:"tier"         json:"tier"`
	Status      Status    `db:"status"       json:"status"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}

// NewUnit is the ingestion payload before an identifier is assigned.
type NewUnit struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id,omitempty"`
	Tier        Tier      `json:"tier,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Validate checks the fields ingestion requires.
func (n NewUnit) Validate() error {
	if n.Title == "" {
		return errors.New("new unit: title is required")
	}
	if n.Source == "" {
		return errors.New("new unit: source is required")
	}
	if n.PublishedAt.IsZero() {
		return errors.New("new unit: published_at is required")
	}
	if n.Tier != "" && !n.Tier.Valid() {
		return errors.New("new unit: unknown tier " + string(n.Tier))
	}
	return nil
}

// DedupKey returns the deduplication key: the source-provided identifier when
// present, otherwise a content hash over source, title and publication time.
func (n NewUnit) DedupKey() string {
	if n.ExternalID != "" {
		return n.ExternalID
	}
	h := sha256.Sum256([]byte(n.Source + "|" + n.Title + "|" + n.PublishedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h[:])
}
