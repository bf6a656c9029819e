package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"videotube/apperror"
	"videotube/database"
	"videotube/storage"
)

// RegisterInput 注册请求的文本字段
type RegisterInput struct {
	FullName string `json:"fullname" validate:"required,max=40"`
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput accepts either username or email.
type LoginInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type UserService struct {
	db        *gorm.DB
	uploads   *Orchestrator
	storage   storage.Deleter
	validator *Validator
	tokens    *TokenIssuer
	log       zerolog.Logger
}

func NewUserService(db *gorm.DB, uploads *Orchestrator, deleter storage.Deleter, v *Validator, tokens *TokenIssuer, log zerolog.Logger) *UserService {
	return &UserService{db: db, uploads: uploads, storage: deleter, validator: v, tokens: tokens, log: log}
}

// Register creates a user with optional avatar and cover image. The files
// are uploaded in one batch before the row is written; if the write fails
// the uploaded files are deleted again.
func (s *UserService) Register(ctx context.Context, in RegisterInput, files RegistrationFiles) (*database.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := s.validator.Struct(in); err != nil {
		Discard(files)
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.User{}).
		Where("username = ? OR email = ?", in.Username, in.Email).Count(&count).Error; err != nil {
		Discard(files)
		return nil, apperror.NewInternal("failed to check existing users", err)
	}
	if count > 0 {
		Discard(files)
		return nil, apperror.NewConflict("User with email or username already exists", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		Discard(files)
		return nil, apperror.NewInternal("failed to hash password", err)
	}

	user := &database.User{
		Username: in.Username,
		Email:    in.Email,
		FullName: in.FullName,
		Password: string(hashed),
	}
	_, err = s.uploads.Upload(ctx, files, func(ctx context.Context, assets Assets) error {
		user.Avatar, user.AvatarID = assets.URL(SlotAvatar), assets.RemoteID(SlotAvatar)
		user.CoverImage, user.CoverImageID = assets.URL(SlotCoverImage), assets.RemoteID(SlotCoverImage)
		return dbError(s.db.WithContext(ctx).Create(user).Error, "User")
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

// Login 校验用户名或邮箱与密码，返回 access token
func (s *UserService) Login(ctx context.Context, in LoginInput) (string, *database.User, error) {
	if err := s.validator.Struct(in); err != nil {
		return "", nil, err
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" && email == "" {
		return "", nil, apperror.NewValidation("username or email is required",
			apperror.FieldError{Field: "username", Message: "is required"})
	}

	var user database.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", username, email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, apperror.NewNotFound("User does not exist")
	}
	if err != nil {
		return "", nil, apperror.NewInternal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return "", nil, apperror.NewUnauthorized("Invalid user credentials")
	}

	token, err := s.tokens.Issue(&user)
	if err != nil {
		return "", nil, apperror.NewInternal("failed to sign access token", err)
	}
	return token, &user, nil
}

// UpdateAvatar replaces the user's avatar and deletes the previous one.
func (s *UserService) UpdateAvatar(ctx context.Context, userID uint, files AvatarFiles) (*database.User, error) {
	return s.replaceImage(ctx, userID, files, SlotAvatar, func(u *database.User, a Asset) string {
		old := u.AvatarID
		u.Avatar, u.AvatarID = a.URL, a.RemoteID
		return old
	})
}

// UpdateCoverImage replaces the user's cover image and deletes the previous one.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID uint, files CoverImageFiles) (*database.User, error) {
	return s.replaceImage(ctx, userID, files, SlotCoverImage, func(u *database.User, a Asset) string {
		old := u.CoverImageID
		u.CoverImage, u.CoverImageID = a.URL, a.RemoteID
		return old
	})
}

func (s *UserService) replaceImage(ctx context.Context, userID uint, files FileSet, slot Slot, apply func(*database.User, Asset) string) (*database.User, error) {
	var (
		user  database.User
		oldID string
	)
	assets, err := s.uploads.Upload(ctx, files, func(ctx context.Context, assets Assets) error {
		asset, ok := assets.Get(slot)
		if !ok {
			return apperror.NewInternal(string(slot)+" upload produced no asset", nil)
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&user, userID).Error; err != nil {
				return dbError(err, "User")
			}
			oldID = apply(&user, asset)
			return dbError(tx.Save(&user).Error, "User")
		})
	})
	if err != nil {
		return nil, err
	}

	deletePrevious(ctx, s.storage, s.log, oldID, assets.RemoteID(slot), slot)
	return &user, nil
}

// deletePrevious 旧文件删除失败只记录日志
func deletePrevious(ctx context.Context, deleter storage.Deleter, log zerolog.Logger, oldID, newID string, slot Slot) {
	if oldID == "" || oldID == newID {
		return
	}
	if err := deleter.Delete(context.WithoutCancel(ctx), oldID); err != nil {
		log.Warn().Err(err).Str("slot", string(slot)).Str("remote_id", oldID).Msg("failed to delete previous asset")
	}
}

// dbError maps gorm errors onto the error taxonomy.
func dbError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperror.NewConflict(entity+" already exists", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.NewNotFound(entity + " not found")
	}
	return err
}
