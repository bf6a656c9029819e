package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"videotube/apperror"
	"videotube/service"
	"videotube/util"
)

// APIHandlers 结构体持有所有 handler 的依赖
type APIHandlers struct {
	Users   *service.UserService
	Videos  *service.VideoService
	TempDir string
	Log     zerolog.Logger
}

// NewAPIHandlers 创建一个新的 APIHandlers 实例
func NewAPIHandlers(users *service.UserService, videos *service.VideoService, tempDir string, log zerolog.Logger) *APIHandlers {
	return &APIHandlers{Users: users, Videos: videos, TempDir: tempDir, Log: log}
}

// SuccessResponse is the JSON success envelope.
type SuccessResponse struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, SuccessResponse{Success: status < 400, StatusCode: status, Data: data, Message: message})
}

// fail hands err to the error middleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// HealthcheckHandler 健康检查
func HealthcheckHandler(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"status": "OK"}, "Health check passed")
}

// intake saves multipart files into the temp dir under unique names. Until a
// service takes the files over, release removes them.
type intake struct {
	dir   string
	paths []string
}

// save 把表单文件落盘，字段缺失时返回 nil
func (in *intake) save(c *gin.Context, fields ...string) (*service.UploadedFile, error) {
	for _, field := range fields {
		fh, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, apperror.NewValidation("Invalid multipart body", apperror.FieldError{Field: field, Message: err.Error()})
		}

		dst := filepath.Join(in.dir, uuid.New().String()+strings.ToLower(filepath.Ext(fh.Filename)))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			return nil, apperror.NewInternal("failed to save uploaded file", err)
		}
		in.paths = append(in.paths, dst)
		return &service.UploadedFile{
			Field:     fields[0],
			LocalPath: dst,
			MimeType:  fh.Header.Get("Content-Type"),
			Size:      fh.Size,
		}, nil
	}
	return nil, nil
}

func (in *intake) release() {
	util.RemoveAll(in.paths)
}

func deref(f *service.UploadedFile) service.UploadedFile {
	if f == nil {
		return service.UploadedFile{}
	}
	return *f
}
