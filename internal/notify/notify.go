package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// Channel 是 *amqp.Channel 中用到的部分
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Directory 用来把通知元组补全成邮件所需的信息
type Directory interface {
	GetWorkersByIDs(ctx context.Context, ids []int64) ([]*domain.Worker, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
}

// MailNotifier 把发布结果转换成邮件消息投递到 RabbitMQ，由 mail worker 负责发送
type MailNotifier struct {
	ch             Channel
	dir            Directory
	queue          string
	publishTimeout time.Duration
}

func NewMailNotifier(ch Channel, dir Directory, queue string, publishTimeout time.Duration) *MailNotifier {
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &MailNotifier{
		ch:             ch,
		dir:            dir,
		queue:          queue,
		publishTimeout: publishTimeout,
	}
}

// NotifyShiftsPublished 为每个 (工人, 班次) 投递一封邮件，单条失败不影响其它消息
func (n *MailNotifier) NotifyShiftsPublished(ctx context.Context, locationID int64, notifications []domain.ShiftNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	location, err := n.dir.GetLocation(ctx, locationID)
	if err != nil {
		return fmt.Errorf("查询地点失败: %w", err)
	}

	ids := make([]int64, 0, len(notifications))
	seen := make(map[int64]bool, len(notifications))
	for _, nt := range notifications {
		if !seen[nt.WorkerID] {
			seen[nt.WorkerID] = true
			ids = append(ids, nt.WorkerID)
		}
	}

	workers, err := n.dir.GetWorkersByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("查询工人失败: %w", err)
	}
	byID := make(map[int64]*domain.Worker, len(workers))
	for _, w := range workers {
		byID[w.ID] = w
	}

	var errs []error
	for _, nt := range notifications {
		worker, ok := byID[nt.WorkerID]
		if !ok || !worker.IsActive {
			continue
		}

		mailMessage := domain.MailMessage{
			Type: domain.MailTypeShiftPublished,
			To:   worker.Email,
			Data: domain.ShiftPublishedMailData{
				FullName:  worker.FullName,
				Title:     nt.Title,
				Location:  location.Name,
				StartTime: nt.StartTime,
				EndTime:   nt.EndTime,
				Draft:     nt.Status == domain.ShiftStatusDraft,
			},
		}
		if err := n.publish(ctx, &mailMessage); err != nil {
			errs = append(errs, fmt.Errorf("工人 %d 班次 %d: %w", nt.WorkerID, nt.ShiftID, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Debug("班次通知已投递", slog.Int64("locationID", locationID), slog.Int("count", len(notifications)))

	return nil
}

func (n *MailNotifier) publish(ctx context.Context, mailMessage *domain.MailMessage) error {
	body, err := json.Marshal(mailMessage)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.publishTimeout)
	defer cancel()

	return n.ch.PublishWithContext(
		ctx,
		"",
		n.queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
