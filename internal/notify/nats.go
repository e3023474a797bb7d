package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/nats-io/nats.go"
)

type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NatsSink публикует уведомления в NATS для внешних потребителей событий.
// Тема: <prefix>.<type>, заголовок Nats-Msg-Id равен id уведомления.
type NatsSink struct {
	pub    msgPublisher
	conn   *nats.Conn
	prefix string
}

// ConnectNats подключается к серверу NATS.
func ConnectNats(url, prefix string) (*NatsSink, error) {
	conn, err := nats.Connect(url, nats.Name("rfq-service"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsSink{pub: conn, conn: conn, prefix: prefix}, nil
}

func (s *NatsSink) Name() string {
	return "nats"
}

// Deliver публикует уведомление.
func (s *NatsSink) Deliver(_ context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(fmt.Sprintf("%s.%s", s.prefix, n.Type))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, n.ID)
	msg.Header.Set("User-Id", n.UserID)
	return s.pub.PublishMsg(msg)
}

// Close дожидается отправки буфера и закрывает подключение.
func (s *NatsSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
