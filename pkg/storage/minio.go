// Package storage 把聊天中上传的图片附件写入 MinIO，并为消息生成可访问的预签名地址。
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"fashion-advisor-go/internal/config"
	"fashion-advisor-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrInvalidDataURL 表示图片不是 base64 data URL。
var ErrInvalidDataURL = errors.New("image is not a base64 data url")

// objectClient 是 minio.Client 的最小子集。
type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// AttachmentStore 保存会话图片附件。
type AttachmentStore struct {
	client objectClient
	bucket string
	expiry time.Duration
}

// NewAttachmentStore 初始化 MinIO 客户端并确保存储桶存在。
func NewAttachmentStore(ctx context.Context, cfg config.MinIOConfig) (*AttachmentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	log.Infof("MinIO 附件存储初始化成功, bucket=%s", cfg.BucketName)

	expiry := time.Duration(cfg.URLExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AttachmentStore{client: client, bucket: cfg.BucketName, expiry: expiry}, nil
}

// SaveImage 解码 data URL 并上传，返回预签名的 GET 地址。
func (s *AttachmentStore) SaveImage(ctx context.Context, conversationID, dataURL string) (string, error) {
	contentType, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	objectName := path.Join("conversations", conversationID, uuid.NewString()+extensionFor(contentType))
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", objectName, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}
	return u.String(), nil
}

// DecodeDataURL 解析 data:<mime>;base64,<payload>。
func DecodeDataURL(dataURL string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	contentType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return contentType, data, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}
