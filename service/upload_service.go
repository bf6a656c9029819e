package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"videotube/apperror"
	"videotube/metrics"
	"videotube/storage"
	"videotube/worker"
)

// Dispatcher uploads one batch of local files in an isolated worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, paths []string) (*worker.BatchResult, error)
}

// Asset is an uploaded file resolved to its slot.
type Asset struct {
	Slot      Slot
	LocalPath string
	RemoteID  string
	URL       string
	Bytes     int64
	Duration  *float64
}

// Assets maps slots to their uploaded files. Absent slots resolve to empty.
type Assets map[Slot]Asset

func (a Assets) Get(slot Slot) (Asset, bool) {
	asset, ok := a[slot]
	return asset, ok
}

// URL returns the slot's URL, or "" when the slot was not uploaded.
func (a Assets) URL(slot Slot) string {
	return a[slot].URL
}

func (a Assets) RemoteID(slot Slot) string {
	return a[slot].RemoteID
}

// PersistFunc stores the resolved assets. A returned error triggers
// compensation of every uploaded object.
type PersistFunc func(ctx context.Context, assets Assets) error

// Orchestrator drives one upload request through validate, select, dispatch,
// map, persist and compensate.
type Orchestrator struct {
	validator  *Validator
	dispatcher Dispatcher
	deleter    storage.Deleter
	log        zerolog.Logger

	compensations *prometheus.CounterVec
}

// NewOrchestrator builds an Orchestrator. A nil reg skips metrics registration.
func NewOrchestrator(v *Validator, d Dispatcher, deleter storage.Deleter, log zerolog.Logger, reg prometheus.Registerer) (*Orchestrator, error) {
	o := &Orchestrator{
		validator:  v,
		dispatcher: d,
		deleter:    deleter,
		log:        log,
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "upload",
			Name:      "compensation_deletes_total",
			Help:      "Remote deletes issued after a persistence failure, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		var err error
		if o.compensations, err = metrics.Register(reg, o.compensations); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Upload validates set, uploads its files in one batch and hands the resolved
// assets to persist. Outcomes:
//   - validation failure: local files removed, nothing uploaded;
//   - upload or dispatch failure: persist is not called and nothing is
//     compensated, the worker leaves no remote objects behind;
//   - persistence failure: every uploaded object is deleted, then the
//     persistence error is returned.
func (o *Orchestrator) Upload(ctx context.Context, set FileSet, persist PersistFunc) (Assets, error) {
	if err := o.validator.Files(set); err != nil {
		return nil, err
	}

	var (
		slots []SlotFile
		paths []string
	)
	for _, s := range set.Slots() {
		if s.File == nil {
			continue
		}
		slots = append(slots, s)
		paths = append(paths, s.File.LocalPath)
	}

	result, err := o.dispatcher.Dispatch(ctx, paths)
	if err != nil {
		return nil, err
	}
	if failed := result.Failed(); len(failed) > 0 {
		return nil, o.uploadFailure(slots, failed)
	}

	assets := make(Assets, len(slots))
	for _, s := range slots {
		r, ok := result.Lookup(s.File.LocalPath)
		if !ok || !r.OK() {
			o.log.Warn().Str("slot", string(s.Slot)).Str("path", s.File.LocalPath).Msg("no upload result for slot")
			continue
		}
		assets[s.Slot] = Asset{
			Slot:      s.Slot,
			LocalPath: r.LocalPath,
			RemoteID:  r.RemoteID,
			URL:       r.URL,
			Bytes:     r.Bytes,
			Duration:  r.Duration,
		}
	}

	if persist == nil {
		return assets, nil
	}
	if err := persist(ctx, assets); err != nil {
		o.compensate(ctx, assets)
		if apperror.KindOf(err) == apperror.Persistence {
			return nil, err
		}
		return nil, apperror.NewPersistence("Failed to save uploaded files", err)
	}
	return assets, nil
}

func (o *Orchestrator) uploadFailure(slots []SlotFile, failed []worker.Result) error {
	bySlot := make(map[string]Slot, len(slots))
	for _, s := range slots {
		bySlot[s.File.LocalPath] = s.Slot
	}

	var (
		names  []string
		causes []error
	)
	for _, r := range failed {
		slot := bySlot[r.LocalPath]
		if r.RemoteID != "" && !r.RolledBack {
			// worker 回滚失败，只能记录
			o.log.Error().Err(apperror.NewCompensation("rollback delete failed", errors.New(r.Err))).
				Str("slot", string(slot)).Str("remote_id", r.RemoteID).Msg("remote object orphaned")
		}
		if r.RolledBack {
			continue
		}
		names = append(names, string(slot))
		causes = append(causes, fmt.Errorf("%s: %s", slot, r.Err))
	}
	return apperror.NewUpload(fmt.Sprintf("Failed to upload %s", strings.Join(names, ", ")), errors.Join(causes...))
}

// compensate deletes every uploaded object. Failures are logged and never
// replace the persistence error.
func (o *Orchestrator) compensate(ctx context.Context, assets Assets) {
	ctx = context.WithoutCancel(ctx)
	for slot, a := range assets {
		if a.RemoteID == "" {
			continue
		}
		if err := o.deleter.Delete(ctx, a.RemoteID); err != nil {
			o.compensations.WithLabelValues("failed").Inc()
			o.log.Error().Err(apperror.NewCompensation("compensating delete failed", err)).
				Str("slot", string(slot)).Str("remote_id", a.RemoteID).Msg("compensation failed")
			continue
		}
		o.compensations.WithLabelValues("deleted").Inc()
		o.log.Info().Str("slot", string(slot)).Str("remote_id", a.RemoteID).Msg("compensated remote upload")
	}
}
