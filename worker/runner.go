package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"videotube/apperror"
	"videotube/storage"
)

// Runner executes one Request in an isolated context and returns its Reply.
//
// A returned error means no reply was received: the context ended or the
// worker crashed. A Reply with Error set means the worker ran and reported an
// unstructured failure.
type Runner interface {
	Run(ctx context.Context, req Request) (Reply, error)
}

// ExitError reports a worker process that terminated without a reply.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("upload worker exited with code %d", e.Code)
	}
	return fmt.Sprintf("upload worker exited with code %d: %s", e.Code, e.Stderr)
}

// InProcess runs the batch on a goroutine. Messages are copied in both
// directions and a panic becomes an errored reply.
type InProcess struct {
	Provider storage.Provider
	Logger   zerolog.Logger
}

func (p *InProcess) Run(ctx context.Context, req Request) (Reply, error) {
	in, err := copyMessage(req)
	if err != nil {
		return Reply{}, err
	}

	// 容量为 1：调用方超时离开后 worker 仍能写入并退出
	replies := make(chan Reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- Reply{BatchID: in.BatchID, Error: &ReplyError{
					Message: fmt.Sprintf("upload worker panic: %v", r),
					Stack:   string(debug.Stack()),
				}}
			}
		}()

		reply := RunBatch(ctx, p.Provider, in, p.Logger)
		out, err := copyMessage(reply)
		if err != nil {
			out = Reply{BatchID: in.BatchID, Error: &ReplyError{Message: err.Error()}}
		}
		replies <- out
	}()

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		// 上传可能不响应 ctx，迟到的结果仍需删除远端对象
		go func() { discard(ctx, p.Provider, <-replies, p.Logger) }()
		return Reply{}, ctx.Err()
	}
}

// discard deletes every live object of a reply that arrived after its batch
// was given up on.
func discard(ctx context.Context, deleter storage.Deleter, reply Reply, log zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range reply.Results {
		if !r.OK() {
			continue
		}
		if err := deleter.Delete(ctx, r.RemoteID); err != nil {
			log.Error().Err(apperror.NewCompensation("failed to delete late upload", err)).
				Str("batch_id", reply.BatchID).Str("remote_id", r.RemoteID).Msg("remote object orphaned by timed out batch")
			continue
		}
		log.Warn().Str("batch_id", reply.BatchID).Str("remote_id", r.RemoteID).Msg("deleted upload that finished after its batch timed out")
	}
}

const stderrTail = 2048

// Subprocess re-executes a binary as a dedicated upload worker. The request
// is written to its stdin and the reply is read from its stdout. When ctx ends
// the process is interrupted, and killed if it has not exited after WaitDelay.
// Objects reported by a reply that arrives after ctx ended are removed through
// Deleter.
type Subprocess struct {
	Binary  string   // empty means the running executable
	Args    []string // defaults to ["upload-worker"]
	Env     []string // appended to the parent environment
	Deleter storage.Deleter
	Logger  zerolog.Logger
}

func (s *Subprocess) Run(ctx context.Context, req Request) (Reply, error) {
	bin := s.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return Reply{}, fmt.Errorf("resolve worker binary: %w", err)
		}
		bin = exe
	}
	args := s.Args
	if len(args) == 0 {
		args = []string{"upload-worker"}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		var late Reply
		if s.Deleter != nil && json.Unmarshal(stdout.Bytes(), &late) == nil {
			discard(ctx, s.Deleter, late, s.Logger)
		}
		return Reply{}, ctxErr
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return Reply{}, &ExitError{Code: exitErr.ExitCode(), Stderr: tail(stderr.Bytes(), stderrTail)}
		}
		return Reply{}, fmt.Errorf("start upload worker: %w", runErr)
	}

	var reply Reply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return Reply{}, fmt.Errorf("malformed worker reply: %w", err)
	}
	return reply, nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
