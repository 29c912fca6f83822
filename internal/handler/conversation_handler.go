package handler

import (
	"context"
	"io"
	"net/http"

	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxVoiceUpload 是单段录音的大小上限。
const maxVoiceUpload = 25 << 20

// ConversationHandler 负责会话的增删查与每一轮交互。
type ConversationHandler struct {
	conversations service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversations service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) lookup(c *gin.Context) (*service.Conversation, bool) {
	conv, err := h.conversations.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return conv, true
}

// turnContext 与请求解耦：客户端断开后本轮仍会完成，结果按 ID 写回日志。
func turnContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// Create 新建会话，日志中只有欢迎语。
func (h *ConversationHandler) Create(c *gin.Context) {
	conv := h.conversations.Create()
	respond(c, http.StatusCreated, "success", conv.Snapshot())
}

// List 返回所有会话 ID。
func (h *ConversationHandler) List(c *gin.Context) {
	ok(c, h.conversations.List())
}

// Get 返回会话快照。
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}
	ok(c, conv.Snapshot())
}

// Delete 关闭会话。
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.conversations.Close(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// Reset 清空会话日志。
func (h *ConversationHandler) Reset(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}
	conv.Reset()
	ok(c, conv.Snapshot())
}

// SendMessage 提交一轮输入并等待结果。
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}
	var in service.TurnInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "无效的请求体")
		return
	}
	msg, err := conv.Send(turnContext(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, msg)
}

// DraftRequest 是草稿更新请求体。
type DraftRequest struct {
	Text string `json:"text"`
}

// UpdateDraft 替换待提交的输入。
func (h *ConversationHandler) UpdateDraft(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求体")
		return
	}
	conv.SetDraft(req.Text)
	ok(c, gin.H{"draft": conv.Draft()})
}

// NearbyRequest 携带渲染端拿到的定位结果。没有坐标且未拒绝表示设备不支持定位。
type NearbyRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Denied    bool     `json:"denied"`
}

// CurrentPosition 实现 service.LocationProvider。
func (r NearbyRequest) CurrentPosition(context.Context) (service.Position, error) {
	if r.Denied {
		return service.Position{}, service.ErrLocationDenied
	}
	if r.Latitude == nil || r.Longitude == nil {
		return service.Position{}, service.ErrGeolocationUnsupported
	}
	return service.Position{Latitude: *r.Latitude, Longitude: *r.Longitude}, nil
}

// SearchNearby 执行附近门店子流程。
func (h *ConversationHandler) SearchNearby(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}
	var req NearbyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "无效的请求体")
			return
		}
	}
	msg, err := conv.SearchNearby(turnContext(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, msg)
}

// VoiceStartRequest 携带渲染端的麦克风授权结果，请求体可省略。
type VoiceStartRequest struct {
	Denied bool `json:"denied"`
}

// MicrophoneAccess 实现 service.MicrophoneAccess。
func (r VoiceStartRequest) MicrophoneAccess(context.Context) error {
	if r.Denied {
		return service.ErrMicrophoneDenied
	}
	return nil
}

// StartRecording 进入录音状态。
func (h *ConversationHandler) StartRecording(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}
	var req VoiceStartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "无效的请求体")
			return
		}
	}
	if err := conv.StartRecording(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	ok(c, conv.Snapshot())
}

// StopRecording 接收 multipart 字段 file 中的录音并转写。没有 file 时按空录音处理。
func (h *ConversationHandler) StopRecording(c *gin.Context) {
	conv, found := h.lookup(c)
	if !found {
		return
	}

	var rec service.Recording
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > maxVoiceUpload {
			badRequest(c, "录音文件过大")
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			fail(c, err)
			return
		}
		rec = service.Recording{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}
	} else {
		log.Debugf("StopRecording: no audio file in request: %v", err)
	}

	transcript, err := conv.StopRecording(turnContext(c), rec)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transcript": transcript, "draft": conv.Draft()})
}
