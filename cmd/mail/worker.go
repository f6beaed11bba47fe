package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

type mailSender interface {
	DialAndSend(messages ...*mail.Msg) error
}

type mailWorker struct {
	from           string
	loc            *time.Location
	shiftPublished *template.Template
	sender         mailSender
	logger         *slog.Logger
}

func (w *mailWorker) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Error("消息通道已关闭")
				return
			}
			w.handle(msg)
		}
	}
}

// handle 消息格式错误时直接丢弃，发送失败时重新入队
func (w *mailWorker) handle(msg amqp.Delivery) {
	w.logger.Info("收到消息", slog.Int("size", len(msg.Body)))

	m, err := w.compose(msg.Body)
	if err != nil {
		w.logger.Error("无法构建邮件", slog.String("error", err.Error()))
		_ = msg.Nack(false, false)
		return
	}

	if err := w.sender.DialAndSend(m); err != nil {
		w.logger.Error("邮件发送失败", slog.String("error", err.Error()))
		_ = msg.Nack(false, true)
		return
	}

	_ = msg.Ack(false)
}

func (w *mailWorker) compose(body []byte) (*mail.Msg, error) {
	envelope := struct {
		Type string          `json:"type"`
		To   string          `json:"to"`
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("邮件信息反序列化失败: %w", err)
	}

	m := mail.NewMsg()
	if err := m.From(w.from); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := m.To(envelope.To); err != nil {
		return nil, fmt.Errorf("无法设置邮件收件人: %w", err)
	}

	switch envelope.Type {
	case domain.MailTypeShiftPublished:
		data := domain.ShiftPublishedMailData{}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("邮件数据反序列化失败: %w", err)
		}
		if err := m.SetBodyHTMLTemplate(w.shiftPublished, newShiftPublishedView(data, w.loc)); err != nil {
			return nil, fmt.Errorf("无法设置邮件正文: %w", err)
		}
		subject := "排班通知 - " + data.Title
		if data.Draft {
			subject = "排班草稿通知 - " + data.Title
		}
		m.Subject(subject)
	default:
		return nil, fmt.Errorf("不支持的邮件类型 %q", envelope.Type)
	}

	return m, nil
}

type shiftPublishedView struct {
	FullName string
	Title    string
	Location string
	Date     string
	Start    string
	End      string
	Draft    bool
}

// newShiftPublishedView 把 UTC 时刻转换成邮件中展示的本地时间
func newShiftPublishedView(data domain.ShiftPublishedMailData, loc *time.Location) shiftPublishedView {
	start := data.StartTime.In(loc)
	end := data.EndTime.In(loc)

	endText := end.Format("15:04")
	if end.Format("2006-01-02") != start.Format("2006-01-02") {
		endText = "次日 " + endText
	}

	return shiftPublishedView{
		FullName: data.FullName,
		Title:    data.Title,
		Location: data.Location,
		Date:     start.Format("2006-01-02"),
		Start:    start.Format("15:04"),
		End:      endText,
		Draft:    data.Draft,
	}
}
