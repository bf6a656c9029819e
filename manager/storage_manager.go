package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"videotube/config"
	"videotube/storage"
)

// Build 根据配置创建对应的存储实现
func Build(ctx context.Context, cfg config.StorageConfig) (storage.Provider, error) {
	switch cfg.Provider {
	case "local":
		return storage.NewLocalUploader(cfg.Local.Path, cfg.Local.PublicURL, cfg.Folder)
	case "cloudinary":
		return storage.NewCloudinaryUploader(cfg.Cloudinary, cfg.Folder)
	case "oss":
		return storage.NewOssUploader(cfg.OSS, cfg.Folder)
	case "minio":
		return storage.NewMinioUploader(ctx, cfg.Minio, cfg.Folder)
	// 在此添加其他存储类型的初始化逻辑
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

// StorageManager 负责创建并缓存当前配置的存储后端
type StorageManager struct {
	cfg      config.StorageConfig
	observer storage.Observer
	log      zerolog.Logger

	mu       sync.RWMutex
	provider storage.Provider
}

// NewStorageManager 创建并初始化一个新的 StorageManager
func NewStorageManager(ctx context.Context, cfg config.StorageConfig, observer storage.Observer, log zerolog.Logger) (*StorageManager, error) {
	sm := &StorageManager{cfg: cfg, observer: observer, log: log}
	if err := sm.Refresh(ctx); err != nil {
		return nil, err
	}
	return sm, nil
}

// Provider 返回当前的存储实例
func (sm *StorageManager) Provider() storage.Provider {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.provider
}

// Upload and Delete make the manager itself usable as a Provider, so a
// Refresh is picked up by callers holding the manager.
func (sm *StorageManager) Upload(ctx context.Context, localPath string) (*storage.Asset, error) {
	return sm.Provider().Upload(ctx, localPath)
}

func (sm *StorageManager) Delete(ctx context.Context, remoteID string) error {
	return sm.Provider().Delete(ctx, remoteID)
}

func (sm *StorageManager) Type() string {
	return sm.Provider().Type()
}

// Refresh 重新按配置创建存储实例
func (sm *StorageManager) Refresh(ctx context.Context) error {
	p, err := Build(ctx, sm.cfg)
	if err != nil {
		return err
	}
	p = storage.Instrument(p, sm.observer)

	sm.mu.Lock()
	sm.provider = p
	sm.mu.Unlock()

	sm.log.Info().Str("provider", p.Type()).Str("folder", sm.cfg.Folder).Msg("storage manager refreshed")
	return nil
}
