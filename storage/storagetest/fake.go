// Package storagetest provides an in-memory storage.Provider for tests.
package storagetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"videotube/apperror"
	"videotube/storage"
)

// Fake records every call. Failures are keyed by the file's base name.
type Fake struct {
	FailUpload map[string]error
	FailDelete error
	PanicOn    string
	Delay      time.Duration
	// IgnoreCancel makes Delay run to completion even after ctx ends, like an
	// SDK call that takes no context.
	IgnoreCancel bool

	mu      sync.Mutex
	seq     int
	uploads []string
	deletes []string
	live    map[string]string
}

func NewFake() *Fake {
	return &Fake{FailUpload: map[string]error{}, live: map[string]string{}}
}

func (f *Fake) Type() string { return "fake" }

func (f *Fake) Upload(ctx context.Context, localPath string) (*storage.Asset, error) {
	if localPath == "" {
		return nil, nil
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, apperror.NewUpload("failed to open local file", err)
	}

	if f.Delay > 0 {
		if f.IgnoreCancel {
			time.Sleep(f.Delay)
		} else {
			select {
			case <-time.After(f.Delay):
			case <-ctx.Done():
				return nil, apperror.NewUpload("upload cancelled", ctx.Err())
			}
		}
	}

	base := filepath.Base(localPath)
	if f.PanicOn != "" && f.PanicOn == base {
		panic("fake storage exploded on " + base)
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, localPath)
	failErr := f.FailUpload[base]
	f.mu.Unlock()
	if failErr != nil {
		return nil, apperror.NewUpload("fake upload failed", failErr)
	}

	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("fake/%d-%s", f.seq, base)
	f.live[id] = localPath
	f.mu.Unlock()

	asset := &storage.Asset{
		RemoteID:     id,
		URL:          "https://cdn.test/" + id,
		Bytes:        info.Size(),
		ResourceType: "image",
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".mp4", ".webm", ".mov", ".mkv":
		d := 12.5
		asset.Duration = &d
		asset.ResourceType = "video"
	}
	return asset, nil
}

func (f *Fake) Delete(_ context.Context, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, remoteID)
	if f.FailDelete != nil {
		return f.FailDelete
	}
	delete(f.live, remoteID)
	return nil
}

// Uploads returns the local paths passed to Upload, in call order.
func (f *Fake) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.uploads)
}

// Deletes returns the remote ids passed to Delete, in call order.
func (f *Fake) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deletes)
}

// Live returns the ids that were uploaded and not deleted, sorted.
func (f *Fake) Live() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.live))
	for id := range f.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// WriteFile creates a temp file named name under dir with the given content
// and returns its path.
func WriteFile(t interface {
	Helper()
	Fatalf(string, ...any)
}, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// PNG is a minimal PNG header, enough for content sniffing.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// JPEG is a minimal JPEG header.
var JPEG = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")

// MP4 is a minimal ISO base media header with an mp4 brand.
var MP4 = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom\x00\x00\x00\x08free")
