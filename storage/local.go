package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"videotube/apperror"
)

// LocalUploader 把文件复制到本地目录，开发和测试环境使用
type LocalUploader struct {
	StoragePath string // 存储路径，例如 "uploads"
	PublicURL   string // 对外访问的基础 URL，例如 "http://localhost:8000"
	Folder      string
}

// NewLocalUploader 创建一个新的本地存储实例
func NewLocalUploader(storagePath, publicURL, folder string) (*LocalUploader, error) {
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage path %s: %w", storagePath, err)
	}
	return &LocalUploader{StoragePath: storagePath, PublicURL: strings.TrimRight(publicURL, "/"), Folder: folder}, nil
}

func (l *LocalUploader) Upload(ctx context.Context, localPath string) (*Asset, error) {
	if localPath == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperror.NewUpload("upload cancelled", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, apperror.NewUpload("failed to open local file", err)
	}
	defer src.Close()

	key := objectKey(l.Folder, localPath)
	dst := filepath.Join(l.StoragePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, apperror.NewUpload("failed to prepare storage folder", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return nil, apperror.NewUpload("failed to create stored file", err)
	}
	defer out.Close()

	n, err := io.Copy(out, src)
	if err != nil {
		return nil, apperror.NewUpload("failed to copy file", err)
	}

	return &Asset{
		RemoteID:     key,
		URL:          fmt.Sprintf("%s/uploads/%s", l.PublicURL, key),
		Bytes:        n,
		ResourceType: resourceTypeOf(detectContentType(localPath)),
	}, nil
}

func (l *LocalUploader) Type() string {
	return "local"
}

func (l *LocalUploader) Delete(_ context.Context, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	root, err := filepath.Abs(l.StoragePath)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(root, filepath.FromSlash(remoteID))
	if !strings.HasPrefix(fullPath, root+string(filepath.Separator)) {
		return fmt.Errorf("local delete identifier %q escapes storage path", remoteID)
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
