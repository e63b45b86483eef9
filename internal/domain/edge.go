package domain

import "time"

// EdgeKind is the type of a graph edge.
type EdgeKind string

const (
	// EdgeAbout links a content unit to a topic, carrying a relevance score.
	EdgeAbout EdgeKind = "about"
	// EdgeInfluences is a directed topic-to-topic causal link.
	EdgeInfluences EdgeKind = "influences"
	// EdgeCorrelatesWith is a symmetric topic-to-topic co-movement link.
	EdgeCorrelatesWith EdgeKind = "correlates_with"
	// EdgePeers is a symmetric same-cohort link.
	EdgePeers EdgeKind = "peers"
)

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeAbout, EdgeInfluences, EdgeCorrelatesWith, EdgePeers:
		return true
	}
	return false
}

// Symmetric reports whether k is undirected. Symmetric edges are stored once
// under a canonical endpoint order and hold for both directions.
func (k EdgeKind) Symmetric() bool {
	return k == EdgeCorrelatesWith || k == EdgePeers
}

// Edge is a typed connection between two graph nodes. For `about` edges SrcID
// is a content unit id and DstID a topic id; all other kinds connect topics.
type Edge struct {
	SrcID     string    `db:"src_id"     json:"src_id"`
	DstID     string    `db:"dst_id"     json:"dst_id"`
	Kind      EdgeKind  `db:"kind"       json:"kind"`
	Score     float64   `db:"score"      json:"score,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Canonical returns the edge with symmetric endpoints in lexicographic order.
// Directed kinds pass through unchanged. Canonicalizing at every write
// boundary is what keeps a symmetric pair a single logical row.
func (e Edge) Canonical() Edge {
	if e.Kind.Symmetric() && e.SrcID > e.DstID {
		e.SrcID, e.DstID = e.DstID, e.SrcID
	}
	return e
}

// Key returns the identity triple used to compare edges across replicas.
func (e Edge) Key() string {
	c := e.Canonical()
	return c.SrcID + "|" + c.DstID + "|" + string(c.Kind)
}
