package service

import (
	"errors"
	"sort"
	"sync"

	"fashion-advisor-go/pkg/log"
)

// ErrConversationNotFound 表示会话不存在或已关闭。
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationService 是进程内的会话注册表。
type ConversationService interface {
	Create() *Conversation
	Get(id string) (*Conversation, error)
	Close(id string) error
	List() []string
	CloseAll()
}

type conversationService struct {
	advisor AdvisorAPI
	opts    ConversationOptions

	mu    sync.RWMutex
	items map[string]*Conversation
}

// NewConversationService 创建注册表，新会话共享 advisor 与 opts。
func NewConversationService(advisor AdvisorAPI, opts ConversationOptions) ConversationService {
	return &conversationService{
		advisor: advisor,
		opts:    opts,
		items:   make(map[string]*Conversation),
	}
}

func (s *conversationService) Create() *Conversation {
	c := NewConversation(s.advisor, s.opts)
	s.mu.Lock()
	s.items[c.ID()] = c
	s.mu.Unlock()
	log.Infof("创建会话: %s", c.ID())
	return c
}

func (s *conversationService) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return c, nil
}

// Close 关闭并移除会话，进行中的轮次结果将被丢弃。
func (s *conversationService) Close(id string) error {
	s.mu.Lock()
	c, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()
	if !ok {
		return ErrConversationNotFound
	}
	c.Close()
	log.Infof("关闭会话: %s", id)
	return nil
}

func (s *conversationService) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll 在进程退出时关闭所有会话。
func (s *conversationService) CloseAll() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*Conversation)
	s.mu.Unlock()
	for _, c := range items {
		c.Close()
	}
}
