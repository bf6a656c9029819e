package service

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"videotube/apperror"
	"videotube/config"
)

var (
	imageTypes = []string{"image/jpeg", "image/png"}
	videoTypes = []string{"video/mp4", "video/webm", "video/quicktime", "video/x-matroska"}
)

// Validator checks request fields and uploaded files before anything is sent
// to remote storage.
type Validator struct {
	limits   config.UploadConfig
	validate *validator.Validate
}

func NewValidator(limits config.UploadConfig) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// 错误信息里使用 json 字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{limits: limits, validate: validate}
}

// Struct validates s by its `validate` tags.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewInternal("validation failed", err)
	}
	fields := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperror.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperror.NewValidation("Invalid request fields", fields...)
}

// Files validates every slot of set by content sniffing and size. On any
// rejection all local files of the set are removed before returning.
func (v *Validator) Files(set FileSet) (err error) {
	defer func() {
		if err != nil {
			Discard(set)
		}
	}()

	var fields []apperror.FieldError
	seen := make(map[string]Slot)
	for _, s := range set.Slots() {
		if s.File == nil {
			if s.Required {
				fields = append(fields, apperror.FieldError{Field: string(s.Slot), Message: fmt.Sprintf("%s file is required", s.Slot)})
			}
			continue
		}
		if msg := v.checkFile(s, seen); msg != "" {
			fields = append(fields, apperror.FieldError{Field: string(s.Slot), Message: msg})
		}
	}
	if len(fields) > 0 {
		return apperror.NewValidation("Invalid upload", fields...)
	}
	return nil
}

func (v *Validator) checkFile(s SlotFile, seen map[string]Slot) string {
	if err := v.validate.Struct(s.File); err != nil {
		return "file metadata is incomplete"
	}
	if other, dup := seen[s.File.LocalPath]; dup {
		return fmt.Sprintf("same file as %s", other)
	}
	seen[s.File.LocalPath] = s.Slot

	info, err := os.Stat(s.File.LocalPath)
	if err != nil {
		return "file could not be read"
	}

	allowed, limit := imageTypes, v.limits.MaxImageBytes
	if s.Media == MediaVideo {
		allowed, limit = videoTypes, v.limits.MaxVideoBytes
	}
	if limit > 0 && info.Size() > limit {
		return fmt.Sprintf("file exceeds the %d MB limit", limit/(1024*1024))
	}

	mt, err := mimetype.DetectFile(s.File.LocalPath)
	if err != nil {
		return "file could not be read"
	}
	if !mimetype.EqualsAny(mt.String(), allowed...) {
		return fmt.Sprintf("unsupported %s type %s, allowed: %s", s.Media, mt.String(), strings.Join(allowed, ", "))
	}
	return ""
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	}
	return "is invalid"
}
