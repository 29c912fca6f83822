// Package service 包含了客户端网关的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/internal/repository"
	"fashion-advisor-go/pkg/api"
	"fashion-advisor-go/pkg/log"
	"fashion-advisor-go/pkg/token"
)

// 持久化登录态使用的两个键。
const (
	KeyAuthUser  = "auth_user"
	KeyAuthToken = "auth_token"
)

var (
	// ErrInvalidCredentials 表示邮箱或密码为空。
	ErrInvalidCredentials = errors.New("email and password are required")
	// ErrMissingToken 表示登录响应里没有 token。
	ErrMissingToken = errors.New("login response has no token")
)

// AuthAPI 是会话服务依赖的认证接口。
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Signup(ctx context.Context, email, password string) error
}

// SessionService 管理当前登录态，同时实现 api.TokenSource。
type SessionService interface {
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, email, password string) error
	Logout(ctx context.Context)
	Current() model.Session
	Token() string
}

type sessionService struct {
	auth AuthAPI
	kv   repository.KVStore

	// persist 串行化登录与登出对内存和 kv 的提交，两者总是一致
	persist sync.Mutex

	mu      sync.RWMutex
	current model.Session
}

// NewSessionService 创建 SessionService，并从 kv 恢复登录态。两个键都存在时才恢复。
func NewSessionService(ctx context.Context, auth AuthAPI, kv repository.KVStore) SessionService {
	s := &sessionService{auth: auth, kv: kv}
	s.restore(ctx)
	return s
}

func (s *sessionService) restore(ctx context.Context) {
	rawUser, err := s.kv.Get(ctx, KeyAuthUser)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warnf("读取 %s 失败: %v", KeyAuthUser, err)
		}
		return
	}
	tok, err := s.kv.Get(ctx, KeyAuthToken)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warnf("读取 %s 失败: %v", KeyAuthToken, err)
		}
		return
	}
	email := strings.TrimSpace(rawUser)
	if email == "" || tok == "" {
		return
	}
	s.current = newSession(email, tok)
	log.Infof("已恢复登录态: %s", email)
}

func newSession(email, tok string) model.Session {
	sess := model.Session{Email: email, Token: tok}
	if sub, err := token.SubjectFromToken(tok); err == nil {
		sess.UserID = sub
	} else {
		log.Debugf("无法从 token 中读取用户 ID: %v", err)
	}
	return sess
}

// Login 调用远端登录，成功后同时写入内存与 kv。远端错误原样返回。
func (s *sessionService) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if resp.Data.Token == "" {
		return ErrMissingToken
	}
	if resp.Data.Email != "" {
		email = resp.Data.Email
	}

	sess := newSession(email, resp.Data.Token)
	s.persist.Lock()
	defer s.persist.Unlock()
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	// kv 写入失败不影响本次登录，只是重启后不会恢复
	if err := s.kv.Set(ctx, KeyAuthUser, email); err != nil {
		log.Warnf("保存 %s 失败: %v", KeyAuthUser, err)
	}
	if err := s.kv.Set(ctx, KeyAuthToken, sess.Token); err != nil {
		log.Warnf("保存 %s 失败: %v", KeyAuthToken, err)
	}
	log.Infow("用户登录成功", "email", email, "userId", sess.UserID)
	return nil
}

// Signup 只注册，不登录。
func (s *sessionService) Signup(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	if err := s.auth.Signup(ctx, email, password); err != nil {
		return err
	}
	log.Infow("用户注册成功", "email", email)
	return nil
}

// Logout 无条件清除内存与 kv 中的登录态，不会失败。
func (s *sessionService) Logout(ctx context.Context) {
	s.persist.Lock()
	defer s.persist.Unlock()
	s.mu.Lock()
	email := s.current.Email
	s.current = model.Session{}
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, KeyAuthUser, KeyAuthToken); err != nil {
		log.Warnf("清除已保存的登录态失败: %v", err)
	}
	log.Infow("用户已登出", "email", email)
}

func (s *sessionService) Current() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token 在每次调用时读取，不缓存。
func (s *sessionService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}
