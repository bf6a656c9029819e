package worker

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"videotube/storage"
)

// Serve is the body of the upload-worker process: it reads one Request from r,
// runs it and writes one Reply to w. Setup failures are reported as an errored
// Reply rather than a nonzero exit.
func Serve(ctx context.Context, r io.Reader, w io.Writer, build func(context.Context) (storage.Provider, error), log zerolog.Logger) error {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return writeReply(w, Reply{Error: &ReplyError{Message: "decode request: " + err.Error()}})
	}

	provider, err := build(ctx)
	if err != nil {
		log.Error().Err(err).Str("batch_id", req.BatchID).Msg("failed to build storage provider")
		return writeReply(w, Reply{BatchID: req.BatchID, Error: &ReplyError{Message: err.Error()}})
	}

	return writeReply(w, RunBatch(ctx, provider, req, log))
}

func writeReply(w io.Writer, reply Reply) error {
	return json.NewEncoder(w).Encode(reply)
}
