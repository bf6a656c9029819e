package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"videotube/apperror"
	"videotube/middleware"
	"videotube/service"
)

func currentUser(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		fail(c, apperror.NewUnauthorized("Unauthorized request"))
	}
	return id, ok
}

// UpdateAvatarHandler 更换头像
func (h *APIHandlers) UpdateAvatarHandler(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	in := &intake{dir: h.TempDir}
	avatar, err := in.save(c, "avatar")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}

	user, err := h.Users.UpdateAvatar(c.Request.Context(), userID, service.AvatarFiles{Avatar: deref(avatar)})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, user, "Avatar image updated successfully")
}

// UpdateCoverImageHandler 更换封面
func (h *APIHandlers) UpdateCoverImageHandler(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	in := &intake{dir: h.TempDir}
	cover, err := in.save(c, "coverImage")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}

	user, err := h.Users.UpdateCoverImage(c.Request.Context(), userID, service.CoverImageFiles{CoverImage: deref(cover)})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, user, "Cover image updated successfully")
}

// PublishVideoHandler 发布视频，视频和缩略图同一批上传
func (h *APIHandlers) PublishVideoHandler(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	in := &intake{dir: h.TempDir}
	video, err := in.save(c, "video", "videoFile")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}
	thumb, err := in.save(c, "thumbnail")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}

	input := service.PublishInput{Title: c.PostForm("title"), Description: c.PostForm("description")}
	files := service.VideoPublishFiles{Video: deref(video), Thumbnail: deref(thumb)}
	v, err := h.Videos.Publish(c.Request.Context(), userID, input, files)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, v, "Video published successfully")
}

// UpdateThumbnailHandler 更换视频缩略图
func (h *APIHandlers) UpdateThumbnailHandler(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	videoID, err := strconv.ParseUint(c.Param("videoId"), 10, 64)
	if err != nil {
		fail(c, apperror.NewValidation("Invalid video id", apperror.FieldError{Field: "videoId", Message: "must be a number"}))
		return
	}
	in := &intake{dir: h.TempDir}
	thumb, err := in.save(c, "thumbnail")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}

	v, err := h.Videos.UpdateThumbnail(c.Request.Context(), userID, uint(videoID), service.ThumbnailFiles{Thumbnail: deref(thumb)})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, v, "Thumbnail updated successfully")
}
