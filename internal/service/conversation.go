package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/pkg/api"
	"fashion-advisor-go/pkg/log"

	"github.com/google/uuid"
)

var (
	ErrTurnInFlight           = errors.New("a turn is already in progress")
	ErrEmptyTurn              = errors.New("message has no text or image")
	ErrNearbyUnavailable      = errors.New("nearby search is not available")
	ErrRecordingUnsupported   = errors.New("voice recording is not supported")
	ErrAlreadyRecording       = errors.New("already recording")
	ErrNotRecording           = errors.New("not recording")
	ErrLocationDenied         = errors.New("location access denied")
	ErrGeolocationUnsupported = errors.New("geolocation is not supported")
	ErrMicrophoneDenied       = errors.New("microphone access denied")
	ErrConversationClosed     = errors.New("conversation is closed")
	ErrTurnSuperseded         = errors.New("conversation was reset during the turn")
)

// 展示给用户的固定文案。
const (
	fallbackReplyText      = "AI response generated."
	fallbackErrorText      = "An error occurred."
	nearbyTriggerText      = "Search for fashion nearby"
	locationDeniedText     = "Location access denied. Cannot fetch nearby store recommendations."
	geoUnsupportedText     = "Geolocation is not supported by your browser."
	noStoresText           = "No nearby store recommendations found."
	storesFailedText       = "Failed to fetch nearby store recommendations."
	emptyTranscriptText    = "Could not transcribe audio."
	transcriptionErrorText = "Voice-to-text failed. Please try again."

	// MicrophoneDeniedText 是麦克风授权被拒绝时给用户的提示。
	MicrophoneDeniedText = "Could not access microphone. Please check browser permissions."

	defaultVoiceFilename    = "voice.webm"
	defaultVoiceContentType = "audio/webm"
)

// AdvisorAPI 是编排器用到的远端能力。
type AdvisorAPI interface {
	FashionAdvisorVisual(ctx context.Context, imageB64, query string) (*api.AdvisorResponse, error)
	FashionAdvisorTextOnly(ctx context.Context, query string) (*api.AdvisorResponse, error)
	OnlineSearchAgent(ctx context.Context, query string) (*api.OnlineSearchResponse, error)
	TrendGeoStores(ctx context.Context, product any, styleDesc, location string) (*api.TrendGeoResponse, error)
	VoiceToText(ctx context.Context, filename, contentType string, audio io.Reader) (*api.VoiceToTextResponse, error)
}

// EventPublisher 投递已完成的轮次。
type EventPublisher interface {
	PublishTurn(ctx context.Context, ev model.TurnEvent) error
}

// AttachmentStore 保存用户上传的图片，返回消息中使用的图片地址。
type AttachmentStore interface {
	SaveImage(ctx context.Context, conversationID, dataURL string) (string, error)
}

// Position 是一次定位结果。
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationProvider 按需提供当前位置。拒绝授权时返回 ErrLocationDenied，
// 无定位能力时返回 ErrGeolocationUnsupported。
type LocationProvider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// MicrophoneAccess 报告渲染端能否使用麦克风。拒绝授权时返回 ErrMicrophoneDenied。
type MicrophoneAccess interface {
	MicrophoneAccess(ctx context.Context) error
}

// Scheduler 在 d 之后执行 fn。
type Scheduler func(d time.Duration, fn func())

func afterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Recording 是一段录音。
type Recording struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ConversationOptions 是会话的可选依赖与行为开关。
type ConversationOptions struct {
	NearbyDelay        time.Duration
	LegacyOnlineSearch bool
	VoiceEnabled       bool
	Schedule           Scheduler
	Publisher          EventPublisher
	Attachments        AttachmentStore
	UserID             func() string
}

// Conversation 持有一段有序的消息日志并驱动每一轮对话。
type Conversation struct {
	id      string
	advisor AdvisorAPI
	opts    ConversationOptions

	mu            sync.Mutex
	messages      []model.Message
	draft         string
	processing    bool
	recording     bool
	transcribing  bool
	nearbyVisible bool
	lastProduct   *model.ProductPreview
	lastQuery     string
	closed        bool
	epoch         int // Reset 与 Close 时递增，旧的异步结果据此丢弃
	updatedAt     time.Time

	subs    map[int]chan model.ConversationSnapshot
	nextSub int
}

// NewConversation 创建一段只包含欢迎语的会话。
func NewConversation(advisor AdvisorAPI, opts ConversationOptions) *Conversation {
	if opts.Schedule == nil {
		opts.Schedule = afterFunc
	}
	return &Conversation{
		id:        uuid.NewString(),
		advisor:   advisor,
		opts:      opts,
		messages:  []model.Message{model.NewGreeting()},
		updatedAt: time.Now(),
		subs:      make(map[int]chan model.ConversationSnapshot),
	}
}

// ID 返回会话 ID。
func (c *Conversation) ID() string {
	return c.id
}

// Send 提交一轮输入，返回替换占位后的助手消息。所有远端错误都写入消息文本，不会返回。
func (c *Conversation) Send(ctx context.Context, in TurnInput) (model.Message, error) {
	route := SelectRoute(in, c.opts.LegacyOnlineSearch)
	if route == RouteNone {
		return model.Message{}, ErrEmptyTurn
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.Message{}, ErrConversationClosed
	}
	if c.processing {
		c.mu.Unlock()
		return model.Message{}, ErrTurnInFlight
	}
	c.processing = true
	epoch := c.epoch
	c.mu.Unlock()

	imageRef := in.Image
	if in.Image != "" && c.opts.Attachments != nil {
		if ref, err := c.opts.Attachments.SaveImage(ctx, c.id, in.Image); err != nil {
			log.Warnf("保存图片附件失败，消息中保留原始图片: %v", err)
		} else {
			imageRef = ref
		}
	}

	placeholder := model.NewTypingPlaceholder()
	c.mu.Lock()
	if c.epoch != epoch {
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return model.Message{}, ErrConversationClosed
		}
		return model.Message{}, ErrTurnSuperseded
	}
	if !in.Blank() {
		c.messages = append(c.messages, model.NewMessage(model.AuthorUser, model.TextBody{Text: in.Text, Image: imageRef}))
	}
	c.messages = append(c.messages, placeholder)
	c.draft = ""
	c.notifyLocked()
	c.mu.Unlock()

	body, previews, failed := c.invoke(ctx, route, in)

	c.mu.Lock()
	resolved := placeholder
	resolved.Resolve(body)
	if c.epoch == epoch {
		c.updateMessageLocked(placeholder.ID, body)
		c.processing = false
		if len(previews) > 0 && strings.TrimSpace(in.Text) != "" {
			first := previews[0]
			c.lastProduct = &first
			c.lastQuery = in.Text
			c.opts.Schedule(c.opts.NearbyDelay, func() { c.showNearby(epoch) })
		}
		c.notifyLocked()
	}
	c.mu.Unlock()

	c.publish(ctx, model.TurnEvent{
		ConversationID:  c.id,
		Route:           string(route),
		QueryText:       in.Text,
		HasImage:        in.Image != "",
		Recommendations: previews,
		Failed:          failed,
		CreatedAt:       resolved.CreatedAt,
	})
	return resolved, nil
}

// invoke 按路由只调用一个远端能力。
func (c *Conversation) invoke(ctx context.Context, route Route, in TurnInput) (model.Body, []model.ProductPreview, bool) {
	var (
		resp *api.AdvisorResponse
		err  error
	)
	switch route {
	case RouteVisual:
		resp, err = c.advisor.FashionAdvisorVisual(ctx, in.Image, in.Text)
	case RouteTextOnly:
		resp, err = c.advisor.FashionAdvisorTextOnly(ctx, in.Text)
	case RouteOnlineSearch:
		var sr *api.OnlineSearchResponse
		sr, err = c.advisor.OnlineSearchAgent(ctx, in.Text)
		if err == nil {
			text, ok := sr.Text()
			if !ok {
				text = fallbackReplyText
			}
			return model.TextBody{Text: text}, nil, false
		}
	}
	if err != nil {
		log.Warnw("对话轮次调用失败", "conversation", c.id, "route", route, "error", err)
		return model.TextBody{Text: errorText(err)}, nil, true
	}

	text, ok := resp.Text()
	if !ok {
		text = fallbackReplyText
	}
	if resp == nil {
		return model.TextBody{Text: text}, nil, false
	}
	previews := toPreviews(resp.Products)
	if len(previews) == 0 {
		return model.TextBody{Text: text}, nil, false
	}
	return model.ProductsBody{Text: text, Products: previews}, previews, false
}

func errorText(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallbackErrorText
}

func toPreviews(products []api.Product) []model.ProductPreview {
	if len(products) == 0 {
		return nil
	}
	out := make([]model.ProductPreview, 0, len(products))
	for _, p := range products {
		out = append(out, model.ProductPreview{
			ID:          string(p.ID),
			Image:       p.Image,
			Name:        p.DisplayName(),
			Description: p.Description,
		})
	}
	return out
}

// updateMessageLocked 按 ID 原地替换内容，ID 不存在时什么都不做。
func (c *Conversation) updateMessageLocked(id string, body model.Body) bool {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Resolve(body)
			return true
		}
	}
	return false
}

func (c *Conversation) showNearby(epoch int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.closed || c.lastProduct == nil {
		return
	}
	c.nearbyVisible = true
	c.notifyLocked()
}

func (c *Conversation) publish(ctx context.Context, ev model.TurnEvent) {
	if c.opts.Publisher == nil {
		return
	}
	if c.opts.UserID != nil {
		ev.UserID = c.opts.UserID()
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.opts.Publisher.PublishTurn(pubCtx, ev); err != nil {
			log.Warnf("投递对话事件失败: %v", err)
		}
	}()
}

// SearchNearby 用最近一次推荐的商品和查询词查找附近门店，结果作为新消息追加。
func (c *Conversation) SearchNearby(ctx context.Context, loc LocationProvider) (model.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.Message{}, ErrConversationClosed
	}
	if !c.nearbyVisible || c.lastProduct == nil {
		c.mu.Unlock()
		return model.Message{}, ErrNearbyUnavailable
	}
	product := *c.lastProduct
	query := c.lastQuery
	c.nearbyVisible = false
	trigger := model.NewMessage(model.AuthorUser, model.TextBody{Text: nearbyTriggerText})
	trigger.Status = model.StatusThinking
	c.messages = append(c.messages, trigger)
	epoch := c.epoch
	c.notifyLocked()
	c.mu.Unlock()

	reply := model.NewMessage(model.AuthorAssistant, c.lookupStores(ctx, loc, product, query))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return reply, nil
	}
	for i := range c.messages {
		if c.messages[i].ID == trigger.ID {
			c.messages[i].Status = model.StatusResolved
			break
		}
	}
	c.messages = append(c.messages, reply)
	c.notifyLocked()
	return reply, nil
}

func (c *Conversation) lookupStores(ctx context.Context, loc LocationProvider, product model.ProductPreview, query string) model.Body {
	if loc == nil {
		return model.TextBody{Text: geoUnsupportedText}
	}
	pos, err := loc.CurrentPosition(ctx)
	if errors.Is(err, ErrGeolocationUnsupported) {
		return model.TextBody{Text: geoUnsupportedText}
	}
	if err != nil {
		return model.TextBody{Text: locationDeniedText}
	}

	location := strconv.FormatFloat(pos.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(pos.Longitude, 'f', -1, 64)
	resp, err := c.advisor.TrendGeoStores(ctx, product, query, location)
	if err != nil {
		log.Warnw("附近门店查询失败", "conversation", c.id, "error", err)
		return model.TextBody{Text: storesFailedText}
	}
	if resp == nil || len(resp.Stores) == 0 {
		return model.TextBody{Text: noStoresText}
	}
	stores := make([]model.Store, 0, len(resp.Stores))
	for _, s := range resp.Stores {
		stores = append(stores, model.Store{
			Name:      s.Name,
			Address:   s.Address,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		})
	}
	return model.StoreMapsBody{Stores: stores}
}

// StartRecording 进入录音状态。不支持录音时在请求授权之前就拒绝；mic 为 nil 视为已授权。
func (c *Conversation) StartRecording(ctx context.Context, mic MicrophoneAccess) error {
	c.mu.Lock()
	closed, enabled := c.closed, c.opts.VoiceEnabled
	c.mu.Unlock()
	switch {
	case closed:
		return ErrConversationClosed
	case !enabled:
		return ErrRecordingUnsupported
	}
	if mic != nil {
		if err := mic.MicrophoneAccess(ctx); err != nil {
			log.Warnw("无法使用麦克风", "conversation", c.id, "error", err)
			return ErrMicrophoneDenied
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrConversationClosed
	case c.processing:
		return ErrTurnInFlight
	case c.recording || c.transcribing:
		return ErrAlreadyRecording
	}
	c.recording = true
	c.notifyLocked()
	return nil
}

// StopRecording 结束录音并转写一次。转写结果写入草稿，不会自动提交；录音数据不会被保存。
func (c *Conversation) StopRecording(ctx context.Context, rec Recording) (string, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	c.recording = false
	c.transcribing = true
	epoch := c.epoch
	c.notifyLocked()
	c.mu.Unlock()

	filename := rec.Filename
	if filename == "" {
		filename = defaultVoiceFilename
	}
	contentType := rec.ContentType
	if contentType == "" {
		contentType = defaultVoiceContentType
	}
	resp, err := c.advisor.VoiceToText(ctx, filename, contentType, bytes.NewReader(rec.Data))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return "", nil
	}
	c.transcribing = false
	defer c.notifyLocked()

	if err != nil {
		log.Warnw("语音转写失败", "conversation", c.id, "error", err)
		c.messages = append(c.messages, model.NewMessage(model.AuthorAssistant, model.TextBody{Text: transcriptionErrorText}))
		return "", nil
	}
	var text string
	if resp != nil {
		text = resp.Data.TranscriptText()
	}
	if strings.TrimSpace(text) == "" {
		c.messages = append(c.messages, model.NewMessage(model.AuthorAssistant, model.TextBody{Text: emptyTranscriptText}))
		return "", nil
	}
	c.draft = text
	return text, nil
}

// Draft 返回待提交的输入。
func (c *Conversation) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft 替换待提交的输入。
func (c *Conversation) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
	c.notifyLocked()
}

// Reset 清空日志只留欢迎语，进行中的轮次结果会被丢弃。
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.messages = []model.Message{model.NewGreeting()}
	c.draft = ""
	c.processing = false
	c.recording = false
	c.transcribing = false
	c.nearbyVisible = false
	c.lastProduct = nil
	c.lastQuery = ""
	c.notifyLocked()
}

// Close 关闭会话与所有订阅。
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Snapshot 返回当前会话视图的拷贝。
func (c *Conversation) Snapshot() model.ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) snapshotLocked() model.ConversationSnapshot {
	msgs := make([]model.Message, len(c.messages))
	copy(msgs, c.messages)
	return model.ConversationSnapshot{
		ID:            c.id,
		Messages:      msgs,
		Draft:         c.draft,
		Processing:    c.processing,
		Recording:     c.recording,
		Transcribing:  c.transcribing,
		NearbyVisible: c.nearbyVisible,
		UpdatedAt:     c.updatedAt,
	}
}

// Subscribe 返回一个在每次变化后收到完整快照的 channel。
// 订阅者消费过慢时旧快照会被丢弃，只保留最新的。
func (c *Conversation) Subscribe() (<-chan model.ConversationSnapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan model.ConversationSnapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

func (c *Conversation) notifyLocked() {
	c.updatedAt = time.Now()
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
