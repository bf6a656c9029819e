package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"videotube/apperror"
	"videotube/metrics"
	"videotube/util"
)

// DefaultTimeout bounds one batch when no timeout is configured.
const DefaultTimeout = 60 * time.Second

const (
	outcomeSuccess      = "success"
	outcomeUploadFailed = "upload_failed"
	outcomeTimeout      = "timeout"
	outcomeCrashed      = "crashed"
	outcomeErrored      = "errored"
	outcomeCancelled    = "cancelled"
)

// BatchResult is the consolidated outcome of one dispatch, keyed by local path.
type BatchResult struct {
	BatchID string
	order   []string
	byPath  map[string]Result
}

// Lookup returns the result for localPath. Results are joined by path
// identity, never by position.
func (b *BatchResult) Lookup(localPath string) (Result, bool) {
	if b == nil {
		return Result{}, false
	}
	r, ok := b.byPath[localPath]
	return r, ok
}

// Len is the number of results, always equal to the number of submitted paths.
func (b *BatchResult) Len() int {
	if b == nil {
		return 0
	}
	return len(b.order)
}

// Results returns every result in submission order.
func (b *BatchResult) Results() []Result {
	if b == nil {
		return nil
	}
	out := make([]Result, 0, len(b.order))
	for _, p := range b.order {
		out = append(out, b.byPath[p])
	}
	return out
}

// Failed returns the results whose upload did not succeed, including
// siblings rolled back because of them.
func (b *BatchResult) Failed() []Result {
	var out []Result
	for _, r := range b.Results() {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// RemoteIDs lists the objects that are live in remote storage.
func (b *BatchResult) RemoteIDs() []string {
	var ids []string
	for _, r := range b.Results() {
		if r.OK() {
			ids = append(ids, r.RemoteID)
		}
	}
	return ids
}

// Dispatcher hands each batch to a fresh worker and waits for its single
// reply, bounded by a timeout.
type Dispatcher struct {
	runner  Runner
	timeout time.Duration
	log     zerolog.Logger

	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewDispatcher builds a Dispatcher. A nil reg skips metrics registration.
func NewDispatcher(runner Runner, timeout time.Duration, log zerolog.Logger, reg prometheus.Registerer) (*Dispatcher, error) {
	if runner == nil {
		return nil, errors.New("worker runner is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{
		runner:  runner,
		timeout: timeout,
		log:     log,
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Upload batches dispatched, by terminal outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "dispatch",
			Name:      "batch_duration_seconds",
			Help:      "Wall time from dispatch to reply.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
	}
	if reg != nil {
		var err error
		if d.total, err = metrics.Register(reg, d.total); err != nil {
			return nil, err
		}
		if d.duration, err = metrics.Register(reg, d.duration); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dispatch uploads paths in one isolated worker. Per-file upload failures
// come back inside the BatchResult; an error is returned only when the worker
// itself failed (timeout, crash, errored reply). On error every local path is
// removed, since the worker may not have reached them.
func (d *Dispatcher) Dispatch(ctx context.Context, paths []string) (*BatchResult, error) {
	if len(paths) == 0 {
		return &BatchResult{byPath: map[string]Result{}}, nil
	}

	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			util.RemoveAll(paths)
			return nil, apperror.NewValidation("a file was submitted twice in one batch",
				apperror.FieldError{Field: "path", Message: p})
		}
		seen[p] = struct{}{}
	}

	req := Request{BatchID: uuid.New().String(), Paths: slices.Clone(paths)}
	log := d.log.With().Str("batch_id", req.BatchID).Int("files", len(paths)).Logger()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	reply, err := d.runner.Run(ctx, req)
	result, outcome, err := d.settle(req, reply, err)
	elapsed := time.Since(start)

	d.total.WithLabelValues(outcome).Inc()
	d.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		removed := util.RemoveAll(req.Paths)
		log.Error().Err(err).Str("outcome", outcome).Dur("duration", elapsed).Int("removed", removed).Msg("upload batch failed")
		return nil, err
	}
	log.Info().Str("outcome", outcome).Dur("duration", elapsed).Msg("upload batch finished")
	return result, nil
}

// settle turns the runner's answer into exactly one outcome.
func (d *Dispatcher) settle(req Request, reply Reply, runErr error) (*BatchResult, string, error) {
	if runErr != nil {
		switch {
		case errors.Is(runErr, context.DeadlineExceeded):
			return nil, outcomeTimeout, apperror.NewUploadTimeout(
				fmt.Sprintf("upload did not finish within %s", d.timeout), runErr)
		case errors.Is(runErr, context.Canceled):
			return nil, outcomeCancelled, apperror.NewDispatch("upload was cancelled", runErr)
		}
		var exitErr *ExitError
		if errors.As(runErr, &exitErr) {
			d.log.Error().Int("exit_code", exitErr.Code).Str("stderr", exitErr.Stderr).Str("batch_id", req.BatchID).Msg("upload worker crashed")
		}
		return nil, outcomeCrashed, apperror.NewDispatch("upload worker crashed", runErr)
	}

	if reply.Error != nil {
		d.log.Error().Str("batch_id", req.BatchID).Str("stack", reply.Error.Stack).Msg(reply.Error.Message)
		return nil, outcomeErrored, apperror.NewDispatch("upload worker failed", reply.Error)
	}
	if reply.BatchID != req.BatchID {
		return nil, outcomeErrored, apperror.NewDispatch(
			fmt.Sprintf("upload worker answered batch %q, want %q", reply.BatchID, req.BatchID), nil)
	}

	result := &BatchResult{BatchID: req.BatchID, order: req.Paths, byPath: make(map[string]Result, len(req.Paths))}
	for _, r := range reply.Results {
		result.byPath[r.LocalPath] = r
	}
	for _, p := range req.Paths {
		if _, ok := result.byPath[p]; !ok {
			d.orphans(req.BatchID, reply.Results)
			return nil, outcomeErrored, apperror.NewDispatch(fmt.Sprintf("upload worker returned no result for %s", p), nil)
		}
	}
	if len(result.byPath) != len(req.Paths) {
		d.orphans(req.BatchID, reply.Results)
		return nil, outcomeErrored, apperror.NewDispatch("upload worker returned results for unknown paths", nil)
	}

	if len(result.Failed()) > 0 {
		return result, outcomeUploadFailed, nil
	}
	return result, outcomeSuccess, nil
}

func (d *Dispatcher) orphans(batchID string, results []Result) {
	for _, r := range results {
		if r.OK() {
			d.log.Error().Str("batch_id", batchID).Str("remote_id", r.RemoteID).Msg("remote object orphaned by malformed reply")
		}
	}
}
