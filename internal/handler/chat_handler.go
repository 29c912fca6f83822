package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 网关只监听本地，允许所有来源
		},
	}
)

// ChatHandler 通过 WebSocket 推送会话快照，并接收渲染端的输入。
type ChatHandler struct {
	conversations service.ConversationService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(conversations service.ConversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

// inboundFrame 是渲染端发来的指令。
//
//	{"type":"message","text":"...","image":"data:..."}
//	{"type":"draft","text":"..."}
type inboundFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// outboundFrame 是推送给渲染端的数据。
type outboundFrame struct {
	Type    string                      `json:"type"`
	Data    *model.ConversationSnapshot `json:"data,omitempty"`
	Message string                      `json:"message,omitempty"`
}

// Stream 处理一个 WebSocket 连接。每次会话变化都会推送完整快照。
func (h *ChatHandler) Stream(c *gin.Context) {
	conv, err := h.conversations.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，会话: %s", conv.ID())

	snaps, unsubscribe := conv.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan outboundFrame, 4)
	go h.readLoop(ctx, cancel, conn, conv, out)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-snaps:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeFrame(conn, outboundFrame{Type: "snapshot", Data: &snap}); err != nil {
				log.Warnf("推送会话快照失败: %v", err)
				return
			}
		case f := <-out:
			if err := writeFrame(conn, f); err != nil {
				log.Warnf("写入 WebSocket 消息失败: %v", err)
				return
			}
		}
	}
}

// readLoop 读取渲染端指令；连接断开时取消 ctx。输入轮次本身不随连接取消。
func (h *ChatHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, conv *service.Conversation, out chan<- outboundFrame) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			sendFrame(ctx, out, outboundFrame{Type: "error", Message: "invalid frame"})
			continue
		}
		switch f.Type {
		case "message":
			go func(in service.TurnInput) {
				if _, err := conv.Send(context.Background(), in); err != nil {
					sendFrame(ctx, out, outboundFrame{Type: "error", Message: err.Error()})
				}
			}(service.TurnInput{Text: f.Text, Image: f.Image})
		case "draft":
			conv.SetDraft(f.Text)
		default:
			sendFrame(ctx, out, outboundFrame{Type: "error", Message: "unknown frame type: " + f.Type})
		}
	}
}

func sendFrame(ctx context.Context, out chan<- outboundFrame, f outboundFrame) {
	select {
	case out <- f:
	case <-ctx.Done():
	}
}

func writeFrame(conn *websocket.Conn, f outboundFrame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
