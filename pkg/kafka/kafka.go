// Package kafka 负责把已完成的对话轮次投递到 Kafka，供后端的用户画像汇总任务消费。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fashion-advisor-go/internal/config"
	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 kafka.Writer 的最小子集，便于测试替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TurnPublisher 发布 model.TurnEvent。
type TurnPublisher struct {
	writer messageWriter
	topic  string
}

// NewTurnPublisher 初始化 Kafka 生产者。Brokers 支持逗号分隔的多个地址。
func NewTurnPublisher(cfg config.KafkaConfig) *TurnPublisher {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	log.Infof("Kafka 生产者初始化成功, topic=%s brokers=%v", cfg.Topic, brokers)
	return &TurnPublisher{writer: w, topic: cfg.Topic}
}

// encodeTurn 以会话 ID 作为 key，保证同一会话的事件落在同一分区。
func encodeTurn(ev model.TurnEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal turn event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: value,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "route", Value: []byte(ev.Route)},
		},
	}, nil
}

// PublishTurn 发送一个轮次事件。
func (p *TurnPublisher) PublishTurn(ctx context.Context, ev model.TurnEvent) error {
	msg, err := encodeTurn(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write turn event to %s: %w", p.topic, err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *TurnPublisher) Close() error {
	return p.writer.Close()
}
