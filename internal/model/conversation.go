// Package model 包含了客户端网关的数据模型定义。
package model

import "time"

// Session 是当前登录态。Token 为空表示未登录。
type Session struct {
	Email  string `json:"email,omitempty"`
	UserID string `json:"userId,omitempty"`
	Token  string `json:"-"`
}

// Authenticated 表示是否持有 token。
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// ConversationSnapshot 是推送给渲染端的完整会话视图。
type ConversationSnapshot struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages"`
	Draft         string    `json:"draft"`
	Processing    bool      `json:"processing"`
	Recording     bool      `json:"recording"`
	Transcribing  bool      `json:"transcribing"`
	NearbyVisible bool      `json:"nearbyVisible"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TurnEvent 是一次已完成对话轮次的记录，供后端的用户画像任务消费。
type TurnEvent struct {
	ConversationID  string           `json:"conversation_id"`
	UserID          string           `json:"user_id,omitempty"`
	Route           string           `json:"route"`
	QueryText       string           `json:"query_text"`
	HasImage        bool             `json:"has_image"`
	Recommendations []ProductPreview `json:"recommendations,omitempty"`
	Failed          bool             `json:"failed,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
