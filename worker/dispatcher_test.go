package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotube/apperror"
	"videotube/storage/storagetest"
)

type countingRunner struct {
	calls atomic.Int32
	reply func(Request) (Reply, error)
}

func (c *countingRunner) Run(_ context.Context, req Request) (Reply, error) {
	c.calls.Add(1)
	return c.reply(req)
}

func newTestDispatcher(t *testing.T, runner Runner, timeout time.Duration) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(runner, timeout, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	return d
}

func TestDispatchEmptyBatchSpawnsNothing(t *testing.T) {
	runner := &countingRunner{reply: func(Request) (Reply, error) { return Reply{}, nil }}
	d := newTestDispatcher(t, runner, time.Second)

	result, err := d.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestDispatchSingleFileReturnsMatchingResult(t *testing.T) {
	a := storagetest.WriteFile(t, t.TempDir(), "a.png", storagetest.PNG)
	d := newTestDispatcher(t, &InProcess{Provider: storagetest.NewFake(), Logger: zerolog.Nop()}, time.Second)

	result, err := d.Dispatch(context.Background(), []string{a})
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())

	r, ok := result.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, a, r.LocalPath)
	assert.True(t, r.OK())
	assert.Empty(t, result.Failed())
	assert.Equal(t, 1.0, testutil.ToFloat64(d.total.WithLabelValues(outcomeSuccess)))
}

func TestDispatchJoinsResultsByPathNotPosition(t *testing.T) {
	runner := &countingRunner{reply: func(req Request) (Reply, error) {
		// 倒序返回，模拟完成顺序与提交顺序不同
		return Reply{BatchID: req.BatchID, Results: []Result{
			{LocalPath: req.Paths[1], RemoteID: "r-b", URL: "u-b"},
			{LocalPath: req.Paths[0], RemoteID: "r-a", URL: "u-a"},
		}}, nil
	}}
	d := newTestDispatcher(t, runner, time.Second)

	result, err := d.Dispatch(context.Background(), []string{"a.png", "b.png"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Len())

	ra, _ := result.Lookup("a.png")
	rb, _ := result.Lookup("b.png")
	assert.Equal(t, "u-a", ra.URL)
	assert.Equal(t, "u-b", rb.URL)
	assert.Equal(t, []string{"r-a", "r-b"}, result.RemoteIDs())
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestDispatchTimeoutIsDistinctKindAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	fake := storagetest.NewFake()
	fake.Delay = 5 * time.Second
	d := newTestDispatcher(t, &InProcess{Provider: fake, Logger: zerolog.Nop()}, 50*time.Millisecond)

	result, err := d.Dispatch(context.Background(), []string{a})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.UploadTimeout)
	assert.NoFileExists(t, a)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.total.WithLabelValues(outcomeTimeout)))
}

func TestDispatchTimeoutDeletesUploadsThatFinishLate(t *testing.T) {
	a := storagetest.WriteFile(t, t.TempDir(), "a.png", storagetest.PNG)
	fake := storagetest.NewFake()
	fake.Delay = 100 * time.Millisecond
	fake.IgnoreCancel = true
	d := newTestDispatcher(t, &InProcess{Provider: fake, Logger: zerolog.Nop()}, 20*time.Millisecond)

	_, err := d.Dispatch(context.Background(), []string{a})
	require.ErrorIs(t, err, apperror.UploadTimeout)

	assert.Eventually(t, func() bool { return len(fake.Deletes()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, fake.Uploads(), 1)
	assert.Empty(t, fake.Live())
}

func TestDispatchWorkerPanicIsDispatchFailure(t *testing.T) {
	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	fake := storagetest.NewFake()
	fake.PanicOn = "a.png"
	d := newTestDispatcher(t, &InProcess{Provider: fake, Logger: zerolog.Nop()}, time.Second)

	_, err := d.Dispatch(context.Background(), []string{a})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.Dispatch)
	assert.NoFileExists(t, a)
}

func TestDispatchCrashIsDispatchFailure(t *testing.T) {
	runner := &countingRunner{reply: func(Request) (Reply, error) {
		return Reply{}, &ExitError{Code: 3, Stderr: "segfault"}
	}}
	d := newTestDispatcher(t, runner, time.Second)

	_, err := d.Dispatch(context.Background(), []string{"a.png"})
	assert.ErrorIs(t, err, apperror.Dispatch)
	var exitErr *ExitError
	assert.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.total.WithLabelValues(outcomeCrashed)))
}

func TestDispatchRejectsMalformedReplies(t *testing.T) {
	cases := map[string]func(Request) (Reply, error){
		"wrong batch": func(req Request) (Reply, error) {
			return Reply{BatchID: "other", Results: []Result{{LocalPath: req.Paths[0]}}}, nil
		},
		"missing result": func(req Request) (Reply, error) {
			return Reply{BatchID: req.BatchID}, nil
		},
		"unknown path": func(req Request) (Reply, error) {
			return Reply{BatchID: req.BatchID, Results: []Result{{LocalPath: req.Paths[0]}, {LocalPath: "zzz"}}}, nil
		},
		"errored": func(req Request) (Reply, error) {
			return Reply{BatchID: req.BatchID, Error: &ReplyError{Message: "boom"}}, nil
		},
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			d := newTestDispatcher(t, &countingRunner{reply: reply}, time.Second)
			_, err := d.Dispatch(context.Background(), []string{"a.png"})
			assert.ErrorIs(t, err, apperror.Dispatch)
		})
	}
}

func TestDispatchPartialFailureIsReportedInResult(t *testing.T) {
	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	b := storagetest.WriteFile(t, dir, "b.png", storagetest.PNG)
	fake := storagetest.NewFake()
	fake.FailUpload["a.png"] = errors.New("rejected")
	d := newTestDispatcher(t, &InProcess{Provider: fake, Logger: zerolog.Nop()}, time.Second)

	result, err := d.Dispatch(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Len(t, result.Failed(), 2)
	assert.Empty(t, result.RemoteIDs())
	assert.Empty(t, fake.Live())
}

func TestDispatchRejectsDuplicatePaths(t *testing.T) {
	runner := &countingRunner{reply: func(Request) (Reply, error) { return Reply{}, nil }}
	d := newTestDispatcher(t, runner, time.Second)

	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	b := storagetest.WriteFile(t, dir, "b.png", storagetest.PNG)

	_, err := d.Dispatch(context.Background(), []string{a, b, a})
	assert.ErrorIs(t, err, apperror.Validation)
	assert.Equal(t, int32(0), runner.calls.Load())
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
}

func TestInProcessCopiesMessages(t *testing.T) {
	a := storagetest.WriteFile(t, t.TempDir(), "a.png", storagetest.PNG)
	paths := []string{a}
	runner := &InProcess{Provider: storagetest.NewFake(), Logger: zerolog.Nop()}

	reply, err := runner.Run(context.Background(), Request{BatchID: "x", Paths: paths})
	require.NoError(t, err)
	reply.Results[0].LocalPath = "mutated"
	assert.Equal(t, a, paths[0])
}
