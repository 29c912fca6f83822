package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"fashion-advisor-go/pkg/api"
	"fashion-advisor-go/pkg/log"
)

var (
	// ErrNotAuthenticated 表示当前没有登录态。
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUserMismatch 表示请求的用户不是当前登录用户。
	ErrUserMismatch = errors.New("user id does not match the current session")
	// ErrUnsupportedImage 表示上传的文件不是图片。
	ErrUnsupportedImage = errors.New("only image uploads are supported")
)

// UserImageAPI 是用户图片上传的远端能力。
type UserImageAPI interface {
	UploadUserImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (*api.ImageUpload, error)
}

// UserService 处理当前用户的个人资料操作。
type UserService interface {
	UploadImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (*api.ImageUpload, error)
}

type userService struct {
	images   UserImageAPI
	sessions SessionService
}

// NewUserService 创建 UserService。
func NewUserService(images UserImageAPI, sessions SessionService) UserService {
	return &userService{images: images, sessions: sessions}
}

// UploadImage 只允许当前登录用户为自己上传图片。
func (s *userService) UploadImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (*api.ImageUpload, error) {
	sess := s.sessions.Current()
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if sess.UserID != "" && userID != sess.UserID {
		return nil, ErrUserMismatch
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrUnsupportedImage
	}
	out, err := s.images.UploadUserImage(ctx, userID, filename, contentType, r)
	if err != nil {
		return nil, err
	}
	log.Infow("用户图片上传成功", "userId", userID, "filename", out.Filename)
	return out, nil
}
