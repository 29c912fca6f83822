package handler

import (
	"net/http"

	"fashion-advisor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// maxImageUpload 是用户图片的大小上限。
const maxImageUpload = 10 << 20

// UserHandler 负责用户资料相关请求。
type UserHandler struct {
	users service.UserService
}

// NewUserHandler 创建一个新的 UserHandler。
func NewUserHandler(users service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UploadImage 把 multipart 字段 file 转发到后端的用户图片接口。
func (h *UserHandler) UploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少文件字段 file")
		return
	}
	if fh.Size > maxImageUpload {
		badRequest(c, "图片文件过大")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	out, err := h.users.UploadImage(c.Request.Context(), c.Param("id"), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Image uploaded successfully", out)
}
