package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotube/storage/storagetest"
)

func TestRunBatchUploadsEveryPathAndRemovesLocalFiles(t *testing.T) {
	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	b := storagetest.WriteFile(t, dir, "b.png", storagetest.PNG)
	fake := storagetest.NewFake()

	reply := RunBatch(context.Background(), fake, Request{BatchID: "b1", Paths: []string{a, b}}, zerolog.Nop())

	assert.Nil(t, reply.Error)
	assert.Equal(t, "b1", reply.BatchID)
	require.Len(t, reply.Results, 2)
	assert.Equal(t, a, reply.Results[0].LocalPath)
	assert.Equal(t, b, reply.Results[1].LocalPath)
	for _, r := range reply.Results {
		assert.True(t, r.OK(), r.Err)
		assert.NotEmpty(t, r.URL)
	}
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.Len(t, fake.Live(), 2)
}

func TestRunBatchRollsBackSiblingsWhenOnePathFails(t *testing.T) {
	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	b := storagetest.WriteFile(t, dir, "b.png", storagetest.PNG)
	fake := storagetest.NewFake()
	fake.FailUpload["b.png"] = errors.New("quota exceeded")

	reply := RunBatch(context.Background(), fake, Request{BatchID: "b2", Paths: []string{a, b}}, zerolog.Nop())

	require.Len(t, reply.Results, 2)
	ra, rb := reply.Results[0], reply.Results[1]
	assert.True(t, ra.RolledBack)
	assert.False(t, ra.OK())
	assert.NotEmpty(t, rb.Err)
	assert.False(t, rb.RolledBack)

	assert.Equal(t, []string{ra.RemoteID}, fake.Deletes())
	assert.Empty(t, fake.Live())
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
}

func TestRunBatchKeepsRemoteIDWhenRollbackFails(t *testing.T) {
	dir := t.TempDir()
	a := storagetest.WriteFile(t, dir, "a.png", storagetest.PNG)
	b := storagetest.WriteFile(t, dir, "b.png", storagetest.PNG)
	fake := storagetest.NewFake()
	fake.FailUpload["b.png"] = errors.New("quota exceeded")
	fake.FailDelete = errors.New("network down")

	reply := RunBatch(context.Background(), fake, Request{Paths: []string{a, b}}, zerolog.Nop())

	ra := reply.Results[0]
	assert.False(t, ra.RolledBack)
	assert.NotEmpty(t, ra.RemoteID)
	assert.Contains(t, ra.Err, "rollback delete failed")
}

func TestRunBatchMissingLocalFileIsAFailedResult(t *testing.T) {
	fake := storagetest.NewFake()
	reply := RunBatch(context.Background(), fake, Request{Paths: []string{"/nonexistent/x.png"}}, zerolog.Nop())

	require.Len(t, reply.Results, 1)
	assert.NotEmpty(t, reply.Results[0].Err)
	assert.Empty(t, fake.Deletes())
}
