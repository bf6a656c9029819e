package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videotube/apperror"
	"videotube/storage/storagetest"
)

func TestUploadTwoFilesPersistsBothURLs(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")
	cover := env.png(t, "coverImage", "b.png")

	var persisted Assets
	assets, err := env.orch.Upload(context.Background(), RegistrationFiles{Avatar: avatar, CoverImage: cover},
		func(_ context.Context, a Assets) error {
			persisted = a
			return nil
		})
	require.NoError(t, err)

	assert.Len(t, assets, 2)
	assert.NotEmpty(t, assets.URL(SlotAvatar))
	assert.NotEmpty(t, assets.URL(SlotCoverImage))
	assert.NotEqual(t, assets.URL(SlotAvatar), assets.URL(SlotCoverImage))
	assert.Equal(t, assets, persisted)
	assert.Empty(t, env.fake.Deletes())
	assert.NoFileExists(t, avatar.LocalPath)
	assert.NoFileExists(t, cover.LocalPath)
}

func TestUploadAbsentSlotResolvesToEmpty(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")

	assets, err := env.orch.Upload(context.Background(), RegistrationFiles{Avatar: avatar}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, assets.URL(SlotAvatar))
	assert.Empty(t, assets.URL(SlotCoverImage))
	_, ok := assets.Get(SlotCoverImage)
	assert.False(t, ok)
}

func TestUploadFailureSkipsPersistAndCompensation(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")
	env.fake.FailUpload["a.png"] = errors.New("service unavailable")

	called := false
	_, err := env.orch.Upload(context.Background(), AvatarFiles{Avatar: *avatar}, func(context.Context, Assets) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.Upload)
	assert.Equal(t, 502, apperror.StatusCode(err))
	assert.False(t, called)
	assert.Empty(t, env.fake.Deletes())
	assert.NoFileExists(t, avatar.LocalPath)
}

func TestUploadPartialFailureLeavesNoRemoteObjects(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")
	cover := env.png(t, "coverImage", "b.png")
	env.fake.FailUpload["b.png"] = errors.New("rejected")

	called := false
	_, err := env.orch.Upload(context.Background(), RegistrationFiles{Avatar: avatar, CoverImage: cover},
		func(context.Context, Assets) error {
			called = true
			return nil
		})

	assert.ErrorIs(t, err, apperror.Upload)
	assert.Contains(t, err.Error(), "coverImage")
	assert.False(t, called)
	assert.Empty(t, env.fake.Live())
	// the worker rolled the sibling back; the orchestrator compensated nothing
	assert.Equal(t, 0.0, testutil.ToFloat64(env.orch.compensations.WithLabelValues("deleted")))
}

func TestPersistFailureCompensatesEveryUpload(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")
	cover := env.png(t, "coverImage", "b.png")

	var uploaded []string
	_, err := env.orch.Upload(context.Background(), RegistrationFiles{Avatar: avatar, CoverImage: cover},
		func(_ context.Context, a Assets) error {
			uploaded = []string{a.RemoteID(SlotAvatar), a.RemoteID(SlotCoverImage)}
			return errors.New("disk full")
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.Persistence)
	assert.ElementsMatch(t, uploaded, env.fake.Deletes())
	assert.Len(t, env.fake.Deletes(), 2)
	assert.Empty(t, env.fake.Live())
	assert.Equal(t, 2.0, testutil.ToFloat64(env.orch.compensations.WithLabelValues("deleted")))
}

func TestCompensationFailureDoesNotMaskPersistenceError(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")
	env.fake.FailDelete = errors.New("network down")

	_, err := env.orch.Upload(context.Background(), AvatarFiles{Avatar: *avatar}, func(context.Context, Assets) error {
		return apperror.NewConflict("User already exists", nil)
	})

	require.Error(t, err)
	assert.Equal(t, apperror.Persistence, apperror.KindOf(err))
	assert.ErrorIs(t, err, apperror.Conflict)
	assert.Equal(t, 409, apperror.StatusCode(err))
	assert.Len(t, env.fake.Deletes(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.orch.compensations.WithLabelValues("failed")))
}

func TestValidationRejectsBadMimeBeforeDispatch(t *testing.T) {
	env := newTestEnv(t)
	exe := env.file(t, "avatar", "a.exe", []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"), 0)
	cover := env.png(t, "coverImage", "b.png")

	_, err := env.orch.Upload(context.Background(), RegistrationFiles{Avatar: exe, CoverImage: cover}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.Validation)
	assert.Equal(t, "avatar", apperror.As(err).Fields[0].Field)
	assert.Equal(t, int32(0), env.dispatcher.calls.Load())
	assert.NoFileExists(t, exe.LocalPath)
	assert.NoFileExists(t, cover.LocalPath)
}

func TestValidationRejectsOversizedImage(t *testing.T) {
	env := newTestEnv(t)
	big := env.file(t, "avatar", "big.png", storagetest.PNG, 6*1024*1024)

	_, err := env.orch.Upload(context.Background(), AvatarFiles{Avatar: *big}, nil)
	assert.ErrorIs(t, err, apperror.Validation)
	assert.NoFileExists(t, big.LocalPath)
}

func TestValidationRequiresMandatorySlots(t *testing.T) {
	env := newTestEnv(t)
	thumb := env.png(t, "thumbnail", "t.png")

	_, err := env.orch.Upload(context.Background(), VideoPublishFiles{Thumbnail: *thumb}, nil)
	require.ErrorIs(t, err, apperror.Validation)
	assert.Equal(t, "video", apperror.As(err).Fields[0].Field)
	assert.NoFileExists(t, thumb.LocalPath)
}

func TestValidationRejectsSameFileInTwoSlots(t *testing.T) {
	env := newTestEnv(t)
	avatar := env.png(t, "avatar", "a.png")
	cover := *avatar
	cover.Field = "coverImage"

	_, err := env.orch.Upload(context.Background(), RegistrationFiles{Avatar: avatar, CoverImage: &cover}, nil)
	assert.ErrorIs(t, err, apperror.Validation)
	assert.Equal(t, int32(0), env.dispatcher.calls.Load())
}

func TestUploadWithNoFilesStillPersists(t *testing.T) {
	env := newTestEnv(t)

	called := false
	assets, err := env.orch.Upload(context.Background(), RegistrationFiles{}, func(context.Context, Assets) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, assets)
	assert.Empty(t, env.fake.Uploads())
}

func TestUploadTimeoutSurfacesDistinctKind(t *testing.T) {
	env := newTestEnvWithTimeout(t, 50*time.Millisecond)
	env.fake.Delay = 5 * time.Second
	avatar := env.png(t, "avatar", "a.png")

	called := false
	_, err := env.orch.Upload(context.Background(), AvatarFiles{Avatar: *avatar}, func(context.Context, Assets) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperror.UploadTimeout)
	assert.False(t, called)
	assert.NoFileExists(t, avatar.LocalPath)
}
