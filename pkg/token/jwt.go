// Package token 从后端签发的 JWT 中读取声明。
// 只解析不验签，签名由后端校验。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject 表示 token 中没有 sub 声明。
var ErrNoSubject = errors.New("token has no subject")

var parser = jwt.NewParser()

// Claims 是客户端关心的注册声明。
type Claims struct {
	Subject   string
	ExpiresAt time.Time // 未设置 exp 时为零值
}

// Parse 在不验证签名的情况下解析 token。
func Parse(tokenString string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(tokenString, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	c := &Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

// SubjectFromToken 返回 sub 声明，即后端的用户 ID。
func SubjectFromToken(tokenString string) (string, error) {
	c, err := Parse(tokenString)
	if err != nil {
		return "", err
	}
	if c.Subject == "" {
		return "", ErrNoSubject
	}
	return c.Subject, nil
}
