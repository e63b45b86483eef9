// Package sync reconciles the local and cloud graph replicas. Entities are
// enumerated by identifier on both sides: one-sided entities are copied
// across, and when both sides hold differing content the cloud version
// overwrites the local one unconditionally. Processing is strictly sequential
// per entity, and a per-entity failure is logged, counted and skipped, never
// fatal to the run.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/metrics"
	"github.com/jonesrussell/analyst/internal/retry"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// ErrSafetyAbort is returned when the cloud replica looks too empty relative
// to local to be trusted as the source of truth.
var ErrSafetyAbort = errors.New("sync: cloud replica suspiciously small, aborting before any write")

// Options selects what one run does.
type Options struct {
	Mode     Mode
	Entities EntityFilter
}

// Reconciler diffs and merges two graph replicas.
type Reconciler struct {
	local   *graph.Store
	cloud   *graph.Store
	events  *tracker.Store
	cfg     config.SyncConfig
	retry   retry.Config
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewReconciler wires a reconciler. events and m may be nil.
func NewReconciler(local, cloud *graph.Store, events *tracker.Store, cfg config.SyncConfig, m *metrics.Metrics, log logger.Logger) *Reconciler {
	return &Reconciler{
		local:   local,
		cloud:   cloud,
		events:  events,
		cfg:     cfg,
		retry:   retry.DefaultConfig(),
		metrics: m,
		logger:  log,
	}
}

// Reconcile runs one pass over both replicas. Topics (with their sections)
// go first so unit edges never point at a topic that only one side knows,
// then units, then edges. The state file is rewritten only after a run that
// was allowed to write and hit no aborting error.
func (r *Reconciler) Reconcile(ctx context.Context, opts Options) (*Report, error) {
	if opts.Mode == "" {
		opts.Mode = ModeFull
	}
	if opts.Entities == "" {
		opts.Entities = EntitiesAll
	}
	report := newReport(opts.Mode, opts.Entities)
	start := time.Now()

	var since *time.Time
	if opts.Mode == ModeCatchUp {
		state, err := LoadState(r.cfg.StatePath)
		if err != nil {
			return nil, err
		}
		if !state.LastSync.IsZero() {
			since = &state.LastSync
		}
	}

	if err := r.safetyCheck(ctx); err != nil {
		return nil, err
	}

	graphEntities := opts.Entities != EntitiesUnitsOnly
	unitEntities := opts.Entities != EntitiesGraphOnly
	apply := opts.Mode != ModeDryRun

	if graphEntities {
		if err := r.reconcileTopics(ctx, since, apply, report); err != nil {
			return nil, err
		}
	}
	if unitEntities {
		if err := r.reconcileUnits(ctx, since, apply, report); err != nil {
			return nil, err
		}
	}
	if graphEntities {
		if err := r.reconcileEdges(ctx, since, apply, report); err != nil {
			return nil, err
		}
	}

	report.Duration = time.Since(start)
	r.metrics.RecordSyncRun(string(opts.Mode), report.Failed() > 0)

	if apply {
		if err := r.finish(ctx, report); err != nil {
			return report, err
		}
	}

	r.logger.Info("sync run complete",
		logger.String("mode", string(opts.Mode)),
		logger.String("entities", string(opts.Entities)),
		logger.Int("moved", report.Moved()),
		logger.Int("failed", report.Failed()),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// safetyCheck guards against wiping a populated local replica with an empty
// or misconfigured cloud: cloud-wins is only a sane policy when the cloud
// actually holds the data set.
func (r *Reconciler) safetyCheck(ctx context.Context) error {
	localCount, err := r.local.CountTopics(ctx)
	if err != nil {
		return fmt.Errorf("sync: count local topics: %w", err)
	}
	if localCount < 10 {
		return nil
	}
	cloudCount, err := r.cloud.CountTopics(ctx)
	if err != nil {
		return fmt.Errorf("sync: count cloud topics: %w", err)
	}
	if float64(cloudCount) < r.cfg.SafetyRatio*float64(localCount) {
		r.logger.Error("safety check failed",
			logger.Int("local_topics", localCount),
			logger.Int("cloud_topics", cloudCount),
			logger.Float64("safety_ratio", r.cfg.SafetyRatio))
		return ErrSafetyAbort
	}
	return nil
}

func (r *Reconciler) reconcileTopics(ctx context.Context, since *time.Time, apply bool, report *Report) error {
	localTopics, err := r.local.ListTopics(ctx, since)
	if err != nil {
		return fmt.Errorf("sync: list local topics: %w", err)
	}
	cloudTopics, err := r.cloud.ListTopics(ctx, since)
	if err != nil {
		return fmt.Errorf("sync: list cloud topics: %w", err)
	}

	localByID := make(map[string]*domain.Topic, len(localTopics))
	for _, t := range localTopics {
		localByID[t.ID] = t
	}
	cloudByID := make(map[string]*domain.Topic, len(cloudTopics))
	for _, t := range cloudTopics {
		cloudByID[t.ID] = t
	}

	for _, id := range unionKeys(localByID, cloudByID) {
		if err := ctx.Err(); err != nil {
			return err
		}
		local, onLocal := localByID[id]
		cloud, onCloud := cloudByID[id]

		// A since-filtered list hides the unchanged side of a conflict:
		// a topic edited on one replica after the last sync still exists
		// on the other. Probe by id before treating it as one-sided, or a
		// stale local edit would upload over the cloud master.
		if since != nil {
			switch {
			case onLocal && !onCloud:
				probed, err := r.cloud.GetTopic(ctx, id)
				if err == nil {
					cloud, onCloud = probed, true
				} else if !errors.Is(err, graph.ErrNotFound) {
					report.fail(ClassTopic, id, err)
					continue
				}
			case onCloud && !onLocal:
				probed, err := r.local.GetTopic(ctx, id)
				if err == nil {
					local, onLocal = probed, true
				} else if !errors.Is(err, graph.ErrNotFound) {
					report.fail(ClassTopic, id, err)
					continue
				}
			}
		}

		counts := report.Classes[ClassTopic]

		switch {
		case onLocal && !onCloud:
			if apply {
				if err := r.copyTopic(ctx, r.local, r.cloud, local); err != nil {
					report.fail(ClassTopic, id, err)
					r.logger.Error("topic upload failed", logger.String("topic_id", id), logger.Error(err))
					continue
				}
			}
			counts.Uploaded++
			r.metrics.RecordSyncEntity(ClassTopic, "upload")

		case onCloud && !onLocal:
			if apply {
				if err := r.copyTopic(ctx, r.cloud, r.local, cloud); err != nil {
					report.fail(ClassTopic, id, err)
					r.logger.Error("topic download failed", logger.String("topic_id", id), logger.Error(err))
					continue
				}
			}
			counts.Downloaded++
			r.metrics.RecordSyncEntity(ClassTopic, "download")

		default:
			same, err := r.topicsEqual(ctx, local, cloud)
			if err != nil {
				report.fail(ClassTopic, id, err)
				continue
			}
			if same {
				counts.Unchanged++
				continue
			}
			// Cloud is the source of truth; the local version is replaced
			// wholesale, sections included.
			if apply {
				if err := r.copyTopic(ctx, r.cloud, r.local, cloud); err != nil {
					report.fail(ClassTopic, id, err)
					r.logger.Error("topic overwrite failed", logger.String("topic_id", id), logger.Error(err))
					continue
				}
			}
			counts.Overwritten++
			r.metrics.RecordSyncEntity(ClassTopic, "overwrite")
		}
	}
	return nil
}

// copyTopic moves one topic and all its sections from src to dst.
func (r *Reconciler) copyTopic(ctx context.Context, src, dst *graph.Store, topic *domain.Topic) error {
	sections, err := src.ListSections(ctx, topic.ID)
	if err != nil {
		return err
	}
	return retry.Do(ctx, r.retry, func() error {
		if err := dst.UpsertTopic(ctx, topic); err != nil {
			return err
		}
		for _, rec := range sections {
			if err := dst.UpsertSection(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// topicsEqual compares full topic content: scalar fields, timestamps and
// every section's text and metadata all participate.
func (r *Reconciler) topicsEqual(ctx context.Context, local, cloud *domain.Topic) (bool, error) {
	localHash, err := r.topicFingerprint(ctx, r.local, local)
	if err != nil {
		return false, err
	}
	cloudHash, err := r.topicFingerprint(ctx, r.cloud, cloud)
	if err != nil {
		return false, err
	}
	return localHash == cloudHash, nil
}

func (r *Reconciler) topicFingerprint(ctx context.Context, store *graph.Store, topic *domain.Topic) (string, error) {
	sections, err := store.ListSections(ctx, topic.ID)
	if err != nil {
		return "", err
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Section < sections[j].Section })
	return fingerprint(struct {
		Topic    *domain.Topic           `json:"topic"`
		Sections []*domain.SectionRecord `json:"sections"`
	}{topic, sections})
}

func (r *Reconciler) reconcileUnits(ctx context.Context, since *time.Time, apply bool, report *Report) error {
	localUnits, err := r.local.ListUnits(ctx, since)
	if err != nil {
		return fmt.Errorf("sync: list local units: %w", err)
	}
	cloudUnits, err := r.cloud.ListUnits(ctx, since)
	if err != nil {
		return fmt.Errorf("sync: list cloud units: %w", err)
	}

	localByID := make(map[string]*domain.ContentUnit, len(localUnits))
	for _, u := range localUnits {
		localByID[u.ID] = u
	}
	cloudByID := make(map[string]*domain.ContentUnit, len(cloudUnits))
	for _, u := range cloudUnits {
		cloudByID[u.ID] = u
	}

	ids := unionKeys(localByID, cloudByID)
	for start := 0; start < len(ids); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(ids))
		for _, id := range ids[start:end] {
			if err := ctx.Err(); err != nil {
				return err
			}
			local, cloud := localByID[id], cloudByID[id]

			// Same probe as topics: a one-sided listing under a since
			// filter may be a conflict whose other side simply did not
			// change.
			if since != nil {
				switch {
				case local != nil && cloud == nil:
					probed, err := r.cloud.GetUnit(ctx, id)
					if err == nil {
						cloud = probed
					} else if !errors.Is(err, graph.ErrNotFound) {
						report.fail(ClassUnit, id, err)
						continue
					}
				case cloud != nil && local == nil:
					probed, err := r.local.GetUnit(ctx, id)
					if err == nil {
						local = probed
					} else if !errors.Is(err, graph.ErrNotFound) {
						report.fail(ClassUnit, id, err)
						continue
					}
				}
			}

			r.reconcileUnit(ctx, local, cloud, id, apply, report)
		}
	}
	return nil
}

func (r *Reconciler) reconcileUnit(ctx context.Context, local, cloud *domain.ContentUnit, id string, apply bool, report *Report) {
	counts := report.Classes[ClassUnit]

	switch {
	case local != nil && cloud == nil:
		if apply {
			if err := r.copyUnit(ctx, r.cloud, local); err != nil {
				report.fail(ClassUnit, id, err)
				r.logger.Error("unit upload failed", logger.String("unit_id", id), logger.Error(err))
				return
			}
		}
		counts.Uploaded++
		r.metrics.RecordSyncEntity(ClassUnit, "upload")

	case cloud != nil && local == nil:
		if apply {
			if err := r.copyUnit(ctx, r.local, cloud); err != nil {
				report.fail(ClassUnit, id, err)
				r.logger.Error("unit download failed", logger.String("unit_id", id), logger.Error(err))
				return
			}
		}
		counts.Downloaded++
		r.metrics.RecordSyncEntity(ClassUnit, "download")

	default:
		localHash, err := fingerprint(local)
		if err != nil {
			report.fail(ClassUnit, id, err)
			return
		}
		cloudHash, err := fingerprint(cloud)
		if err != nil {
			report.fail(ClassUnit, id, err)
			return
		}
		if localHash == cloudHash {
			counts.Unchanged++
			return
		}
		if apply {
			if err := r.copyUnit(ctx, r.local, cloud); err != nil {
				report.fail(ClassUnit, id, err)
				r.logger.Error("unit overwrite failed", logger.String("unit_id", id), logger.Error(err))
				return
			}
		}
		counts.Overwritten++
		r.metrics.RecordSyncEntity(ClassUnit, "overwrite")
	}
}

func (r *Reconciler) copyUnit(ctx context.Context, dst *graph.Store, unit *domain.ContentUnit) error {
	return retry.Do(ctx, r.retry, func() error {
		return dst.UpsertUnit(ctx, unit)
	})
}

func (r *Reconciler) reconcileEdges(ctx context.Context, since *time.Time, apply bool, report *Report) error {
	localEdges, err := r.local.ListEdges(ctx, since)
	if err != nil {
		return fmt.Errorf("sync: list local edges: %w", err)
	}
	cloudEdges, err := r.cloud.ListEdges(ctx, since)
	if err != nil {
		return fmt.Errorf("sync: list cloud edges: %w", err)
	}

	localByKey := make(map[string]*domain.Edge, len(localEdges))
	for _, e := range localEdges {
		localByKey[e.Key()] = e
	}
	cloudByKey := make(map[string]*domain.Edge, len(cloudEdges))
	for _, e := range cloudEdges {
		cloudByKey[e.Key()] = e
	}

	for _, key := range unionKeys(localByKey, cloudByKey) {
		if err := ctx.Err(); err != nil {
			return err
		}
		local, onLocal := localByKey[key]
		cloud, onCloud := cloudByKey[key]

		// Same probe as topics and units, keyed on the canonical triple.
		if since != nil {
			switch {
			case onLocal && !onCloud:
				probed, err := r.cloud.GetEdge(ctx, local.SrcID, local.DstID, local.Kind)
				if err == nil {
					cloud, onCloud = probed, true
				} else if !errors.Is(err, graph.ErrNotFound) {
					report.fail(ClassEdge, key, err)
					continue
				}
			case onCloud && !onLocal:
				probed, err := r.local.GetEdge(ctx, cloud.SrcID, cloud.DstID, cloud.Kind)
				if err == nil {
					local, onLocal = probed, true
				} else if !errors.Is(err, graph.ErrNotFound) {
					report.fail(ClassEdge, key, err)
					continue
				}
			}
		}

		counts := report.Classes[ClassEdge]

		switch {
		case onLocal && !onCloud:
			if apply {
				if err := r.copyEdge(ctx, r.cloud, local); err != nil {
					report.fail(ClassEdge, key, err)
					r.logger.Error("edge upload failed", logger.String("edge", key), logger.Error(err))
					continue
				}
			}
			counts.Uploaded++
			r.metrics.RecordSyncEntity(ClassEdge, "upload")

		case onCloud && !onLocal:
			if apply {
				if err := r.copyEdge(ctx, r.local, cloud); err != nil {
					report.fail(ClassEdge, key, err)
					r.logger.Error("edge download failed", logger.String("edge", key), logger.Error(err))
					continue
				}
			}
			counts.Downloaded++
			r.metrics.RecordSyncEntity(ClassEdge, "download")

		case local.Score == cloud.Score:
			counts.Unchanged++

		default:
			if apply {
				if err := r.copyEdge(ctx, r.local, cloud); err != nil {
					report.fail(ClassEdge, key, err)
					r.logger.Error("edge overwrite failed", logger.String("edge", key), logger.Error(err))
					continue
				}
			}
			counts.Overwritten++
			r.metrics.RecordSyncEntity(ClassEdge, "overwrite")
		}
	}
	return nil
}

func (r *Reconciler) copyEdge(ctx context.Context, dst *graph.Store, edge *domain.Edge) error {
	return retry.Do(ctx, r.retry, func() error {
		return dst.UpsertEdge(ctx, *edge)
	})
}

// finish stamps the state file and records the run as a provenance event.
// The state file is only rewritten when the run actually moved something; an
// already-converged pass leaves the previous stamp in place.
func (r *Reconciler) finish(ctx context.Context, report *Report) error {
	if report.Moved() > 0 {
		state := &State{LastSync: time.Now().UTC()}
		if local, err := r.latestChange(ctx, r.local); err == nil {
			state.LocalLastChange = local
		}
		if cloud, err := r.latestChange(ctx, r.cloud); err == nil {
			state.CloudLastChange = cloud
		}
		if err := SaveState(r.cfg.StatePath, state); err != nil {
			return err
		}
	}

	if r.events == nil {
		return nil
	}
	if _, err := r.events.Record(&domain.TrackerEvent{
		Type:      domain.EventSyncRun,
		Component: "sync",
		Action:    string(report.Mode),
		IDs:       map[string]string{"pairing": r.local.Driver() + "->" + r.cloud.Driver()},
		Details: map[string]any{
			"entities": string(report.Entities),
			"topics":   report.Classes[ClassTopic],
			"units":    report.Classes[ClassUnit],
			"edges":    report.Classes[ClassEdge],
			"failed":   report.Failed(),
		},
	}); err != nil {
		// The replicas already converged; a provenance gap is logged.
		r.logger.Error("sync_run event not recorded", logger.Error(err))
	}
	return nil
}

// latestChange returns the most recent topic update on a replica, feeding the
// state file's change markers.
func (r *Reconciler) latestChange(ctx context.Context, store *graph.Store) (*time.Time, error) {
	topics, err := store.ListTopics(ctx, nil)
	if err != nil {
		return nil, err
	}
	var latest time.Time
	for _, t := range topics {
		if t.LastUpdated.After(latest) {
			latest = t.LastUpdated
		}
	}
	if latest.IsZero() {
		return nil, nil
	}
	return &latest, nil
}

// fingerprint hashes an entity's full JSON form for conflict detection.
func fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sync: fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// unionKeys returns the sorted union of both maps' keys, fixing the per-run
// entity order.
func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
