package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"videotube/apperror"
	"videotube/database"
	"videotube/storage"
)

// PublishInput 发布视频的文本字段
type PublishInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
}

type VideoService struct {
	db        *gorm.DB
	uploads   *Orchestrator
	storage   storage.Deleter
	validator *Validator
	log       zerolog.Logger
}

func NewVideoService(db *gorm.DB, uploads *Orchestrator, deleter storage.Deleter, v *Validator, log zerolog.Logger) *VideoService {
	return &VideoService{db: db, uploads: uploads, storage: deleter, validator: v, log: log}
}

// Publish uploads the video and its thumbnail in one batch and creates the
// video row. The video's duration comes from the storage service.
func (s *VideoService) Publish(ctx context.Context, ownerID uint, in PublishInput, files VideoPublishFiles) (*database.Video, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validator.Struct(in); err != nil {
		Discard(files)
		return nil, err
	}

	video := &database.Video{
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		IsPublished: true,
	}
	_, err := s.uploads.Upload(ctx, files, func(ctx context.Context, assets Assets) error {
		file, ok := assets.Get(SlotVideo)
		if !ok {
			return apperror.NewInternal("video upload produced no asset", nil)
		}
		thumb, ok := assets.Get(SlotThumbnail)
		if !ok {
			return apperror.NewInternal("thumbnail upload produced no asset", nil)
		}
		video.VideoFile, video.VideoFileID = file.URL, file.RemoteID
		video.Thumbnail, video.ThumbnailID = thumb.URL, thumb.RemoteID
		if file.Duration != nil {
			video.Duration = *file.Duration
		}

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var owner database.User
			if err := tx.Select("id").First(&owner, ownerID).Error; err != nil {
				return dbError(err, "User")
			}
			return dbError(tx.Create(video).Error, "Video")
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("video_id", video.ID).Uint("owner_id", ownerID).Float64("duration", video.Duration).Msg("video published")
	return video, nil
}

// UpdateThumbnail replaces the thumbnail of a video owned by ownerID.
func (s *VideoService) UpdateThumbnail(ctx context.Context, ownerID, videoID uint, files ThumbnailFiles) (*database.Video, error) {
	var video database.Video
	if err := s.findOwned(ctx, ownerID, videoID, &video); err != nil {
		Discard(files)
		return nil, err
	}

	var oldID string
	assets, err := s.uploads.Upload(ctx, files, func(ctx context.Context, assets Assets) error {
		thumb, ok := assets.Get(SlotThumbnail)
		if !ok {
			return apperror.NewInternal("thumbnail upload produced no asset", nil)
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// 上传期间视频可能已被删除，重新加载
			if err := tx.First(&video, videoID).Error; err != nil {
				return dbError(err, "Video")
			}
			oldID = video.ThumbnailID
			video.Thumbnail, video.ThumbnailID = thumb.URL, thumb.RemoteID
			return dbError(tx.Save(&video).Error, "Video")
		})
	})
	if err != nil {
		return nil, err
	}

	deletePrevious(ctx, s.storage, s.log, oldID, assets.RemoteID(SlotThumbnail), SlotThumbnail)
	return &video, nil
}

func (s *VideoService) findOwned(ctx context.Context, ownerID, videoID uint, video *database.Video) error {
	err := s.db.WithContext(ctx).First(video, videoID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NewNotFound("Video not found")
	}
	if err != nil {
		return apperror.NewInternal("failed to load video", err)
	}
	if video.OwnerID != ownerID {
		return apperror.NewForbidden("You are not allowed to update this video")
	}
	return nil
}
