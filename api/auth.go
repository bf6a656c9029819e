package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"videotube/apperror"
	"videotube/service"
)

// RegisterUserHandler 处理注册，multipart 表单可带 avatar 和 coverImage
func (h *APIHandlers) RegisterUserHandler(c *gin.Context) {
	in := &intake{dir: h.TempDir}
	avatar, err := in.save(c, "avatar")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}
	cover, err := in.save(c, "coverImage")
	if err != nil {
		in.release()
		fail(c, err)
		return
	}

	input := service.RegisterInput{
		FullName: c.PostForm("fullname"),
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
		Password: c.PostForm("password"),
	}
	user, err := h.Users.Register(c.Request.Context(), input, service.RegistrationFiles{Avatar: avatar, CoverImage: cover})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, user, "User registered successfully")
}

// LoginHandler 处理用户登录
func (h *APIHandlers) LoginHandler(c *gin.Context) {
	var req service.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperror.NewValidation("Invalid JSON body", apperror.FieldError{Field: "body", Message: err.Error()}))
		return
	}

	token, user, err := h.Users.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("accessToken", token, 0, "/", "", false, true)
	respond(c, http.StatusOK, gin.H{"user": user, "accessToken": token}, "User logged in successfully")
}
