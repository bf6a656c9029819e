package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"videotube/apperror"
	"videotube/config"
	"videotube/util"
)

// OssUploader 实现了 Provider 接口，用于阿里云OSS
type OssUploader struct {
	Client     *oss.Client
	Bucket     *oss.Bucket
	BaseURL    string // 对象访问前缀：自定义域名或 bucket 域名
	UploadPath string // OSS上的存储路径前缀
}

// NewOssUploader 创建一个新的OSS存储实例
func NewOssUploader(cfg config.OSSConfig, folder string) (*OssUploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("OSS config is missing required fields (endpoint, bucket, access_key_id, access_key_secret)")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get OSS bucket '%s': %w", cfg.Bucket, err)
	}

	return &OssUploader{
		Client:     client,
		Bucket:     bucket,
		BaseURL:    ossBaseURL(cfg.Bucket, cfg.Endpoint, cfg.PublicURL),
		UploadPath: folder,
	}, nil
}

func (o *OssUploader) Upload(ctx context.Context, localPath string) (*Asset, error) {
	if localPath == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperror.NewUpload("upload cancelled", err)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, apperror.NewUpload("failed to stat local file", err)
	}

	contentType := detectContentType(localPath)
	options := []oss.Option{oss.WithContext(ctx), oss.ContentType(contentType)}
	if sum, err := util.FileMD5Base64(localPath); err == nil {
		options = append(options, oss.ContentMD5(sum))
	}

	key := objectKey(o.UploadPath, localPath)
	if err := o.Bucket.PutObjectFromFile(key, localPath, options...); err != nil {
		return nil, apperror.NewUpload("failed to upload object to OSS", err)
	}

	return &Asset{
		RemoteID:     key,
		URL:          o.BaseURL + "/" + key,
		Bytes:        info.Size(),
		ResourceType: resourceTypeOf(contentType),
	}, nil
}

// ossBaseURL 返回对象的访问前缀。未配置 public_url 时使用
// <bucket>.<endpoint host>，并沿用 endpoint 的协议（缺省 https）
func ossBaseURL(bucket, endpoint, publicURL string) string {
	if publicURL = strings.TrimRight(publicURL, "/"); publicURL != "" {
		return publicURL
	}
	scheme := "https"
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		scheme, endpoint = "http", rest
	} else {
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}
	host, _, _ := strings.Cut(endpoint, "/")
	return fmt.Sprintf("%s://%s.%s", scheme, bucket, host)
}

func (o *OssUploader) Type() string {
	return "oss"
}

// Delete 从OSS删除文件，OSS 对不存在的 key 同样返回成功
func (o *OssUploader) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return o.Bucket.DeleteObject(key, oss.WithContext(ctx))
}
