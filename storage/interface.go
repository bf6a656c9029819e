package storage

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Asset describes one object created in the remote store.
type Asset struct {
	RemoteID     string   `json:"remote_id"`
	URL          string   `json:"url"`
	Bytes        int64    `json:"bytes"`
	Duration     *float64 `json:"duration,omitempty"` // seconds, video only
	ResourceType string   `json:"resource_type"`
}

// Provider is the remote media store.
//
// Upload with an empty path is a no-op and returns (nil, nil). Delete is
// idempotent: an empty or unknown id is not an error.
type Provider interface {
	Upload(ctx context.Context, localPath string) (*Asset, error)
	Delete(ctx context.Context, remoteID string) error
	Type() string
}

// Deleter is the compensating half of Provider.
type Deleter interface {
	Delete(ctx context.Context, remoteID string) error
}

// objectKey 生成远端唯一对象名，保留原扩展名
func objectKey(folder, localPath string) string {
	name := uuid.New().String() + strings.ToLower(filepath.Ext(localPath))
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// detectContentType sniffs the file content, not the extension.
func detectContentType(localPath string) string {
	mt, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func resourceTypeOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	}
	return "raw"
}
