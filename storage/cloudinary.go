package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"videotube/apperror"
	"videotube/config"
)

// uploadTransformation scales to 1000px wide with automatic quality and format.
const uploadTransformation = "c_scale,w_1000/q_auto/f_auto"

// CloudinaryUploader 基于官方 SDK 的 Cloudinary 存储
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	Folder string
}

// NewCloudinaryUploader 创建一个新的 Cloudinary 存储实例
func NewCloudinaryUploader(cfg config.CloudinaryConfig, folder string) (*CloudinaryUploader, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("cloudinary config is missing required fields (cloud_name, api_key, api_secret)")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	if cfg.BaseURL != "" {
		prefix := strings.TrimRight(cfg.BaseURL, "/")
		cld.Config.API.UploadPrefix = prefix
		cld.Upload.Config.API.UploadPrefix = prefix
	}
	return &CloudinaryUploader{cld: cld, Folder: folder}, nil
}

func (c *CloudinaryUploader) Upload(ctx context.Context, localPath string) (*Asset, error) {
	if localPath == "" {
		return nil, nil
	}

	res, err := c.cld.Upload.Upload(ctx, localPath, uploader.UploadParams{
		Folder:         c.Folder,
		ResourceType:   "auto",
		Transformation: uploadTransformation,
	})
	if err != nil {
		return nil, apperror.NewUpload("cloudinary upload failed", err)
	}
	if res.Error.Message != "" {
		return nil, apperror.NewUpload("cloudinary upload failed", errors.New(res.Error.Message))
	}
	if res.PublicID == "" || res.SecureURL == "" {
		return nil, apperror.NewUpload("cloudinary upload response missing public_id or secure_url", nil)
	}

	return &Asset{
		RemoteID:     res.ResourceType + "/" + res.PublicID,
		URL:          res.SecureURL,
		Bytes:        int64(res.Bytes),
		Duration:     rawDuration(res.Response),
		ResourceType: res.ResourceType,
	}, nil
}

// rawDuration 从原始响应中取视频时长，图片没有该字段
func rawDuration(raw interface{}) *float64 {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	d, ok := m["duration"].(float64)
	if !ok {
		return nil
	}
	return &d
}

func (c *CloudinaryUploader) Type() string {
	return "cloudinary"
}

// Delete destroys an asset. remoteID has the form "<resource_type>/<public_id>".
func (c *CloudinaryUploader) Delete(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	resourceType, publicID, ok := strings.Cut(remoteID, "/")
	if !ok || publicID == "" {
		resourceType, publicID = "image", remoteID
	}

	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID, ResourceType: resourceType})
	if err != nil {
		return fmt.Errorf("cloudinary destroy failed: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy failed: %s", res.Error.Message)
	}
	switch res.Result {
	case "ok", "not found":
		return nil
	}
	return fmt.Errorf("cloudinary destroy returned %q", res.Result)
}
