package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Author 标识消息的发送方。
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Status 是消息的渲染状态。typing 与 thinking 是临时状态，内容就绪后必须回到 resolved。
type Status string

const (
	StatusResolved Status = "resolved"
	StatusTyping   Status = "typing"   // 助手占位，Body 为 nil
	StatusThinking Status = "thinking" // 附近门店子流程进行中，仅作用于触发消息
)

// Body 是消息内容的三种渲染形态之一。
type Body interface {
	bodyType() string
}

// TextBody 是纯文本消息，可附带一张图片引用。
type TextBody struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// ProductsBody 是带商品卡片的助手回复。
type ProductsBody struct {
	Text     string           `json:"text"`
	Products []ProductPreview `json:"products"`
}

// StoreMapsBody 渲染为一组地图条目。
type StoreMapsBody struct {
	Stores []Store `json:"stores"`
}

func (TextBody) bodyType() string      { return "text" }
func (ProductsBody) bodyType() string  { return "products" }
func (StoreMapsBody) bodyType() string { return "store-maps" }

// Message 是会话日志中的一条记录。
type Message struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`
	Body      Body      `json:"-"`
}

// NewMessage 创建一条已就绪的消息。
func NewMessage(author Author, body Body) Message {
	return Message{
		ID:        uuid.NewString(),
		Author:    author,
		CreatedAt: time.Now(),
		Status:    StatusResolved,
		Body:      body,
	}
}

// NewTypingPlaceholder 创建助手的 "正在输入" 占位消息。
func NewTypingPlaceholder() Message {
	m := NewMessage(AuthorAssistant, nil)
	m.Status = StatusTyping
	return m
}

// Resolve 写入内容并清除临时状态。
func (m *Message) Resolve(body Body) {
	m.Body = body
	m.Status = StatusResolved
}

// Text 返回消息的可读文本；地图消息返回空串。
func (m Message) Text() string {
	switch b := m.Body.(type) {
	case TextBody:
		return b.Text
	case ProductsBody:
		return b.Text
	}
	return ""
}

// IsUser 表示是否为用户消息。
func (m Message) IsUser() bool {
	return m.Author == AuthorUser
}

type messageJSON struct {
	ID        string          `json:"id"`
	Author    Author          `json:"author"`
	CreatedAt time.Time       `json:"createdAt"`
	Status    Status          `json:"status"`
	Type      string          `json:"type,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// MarshalJSON 以 {"type": ..., "body": ...} 形式编码内容。
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{ID: m.ID, Author: m.Author, CreatedAt: m.CreatedAt, Status: m.Status}
	if m.Body != nil {
		b, err := json.Marshal(m.Body)
		if err != nil {
			return nil, err
		}
		out.Type = m.Body.bodyType()
		out.Body = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON 根据 type 还原 Body。
func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Message{ID: in.ID, Author: in.Author, CreatedAt: in.CreatedAt, Status: in.Status}

	var err error
	switch in.Type {
	case "":
		return nil
	case "text":
		var b TextBody
		err = json.Unmarshal(in.Body, &b)
		m.Body = b
	case "products":
		var b ProductsBody
		err = json.Unmarshal(in.Body, &b)
		m.Body = b
	case "store-maps":
		var b StoreMapsBody
		err = json.Unmarshal(in.Body, &b)
		m.Body = b
	default:
		return fmt.Errorf("unknown message type %q", in.Type)
	}
	return err
}

// GreetingText 是每个新会话的第一条助手消息。
const GreetingText = "Hi! I'm your AI fashion assistant. Upload an image, describe what you're looking for, or use voice to find the perfect style matches!"

// NewGreeting 创建欢迎消息。
func NewGreeting() Message {
	return NewMessage(AuthorAssistant, TextBody{Text: GreetingText})
}
