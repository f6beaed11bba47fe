package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	failAfter int
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.failAfter > 0 && len(c.published) >= c.failAfter {
		return errors.New("channel closed")
	}
	c.published = append(c.published, msg)
	c.keys = append(c.keys, key)
	return nil
}

type fakeDirectory struct {
	workers  map[int64]*domain.Worker
	location *domain.Location
}

func (d *fakeDirectory) GetWorkersByIDs(ctx context.Context, ids []int64) ([]*domain.Worker, error) {
	var out []*domain.Worker
	for _, id := range ids {
		if w, ok := d.workers[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	if d.location == nil || d.location.ID != id {
		return nil, sql.ErrNoRows
	}
	return d.location, nil
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		workers: map[int64]*domain.Worker{
			7: {ID: 7, FullName: "张三", Email: "zhangsan@example.com", IsActive: true},
			8: {ID: 8, FullName: "李四", Email: "lisi@example.com", IsActive: false},
		},
		location: &domain.Location{ID: 10, Name: "总店"},
	}
}

func notification(workerID int64, status domain.ShiftStatus) domain.ShiftNotification {
	return domain.ShiftNotification{
		WorkerID:  workerID,
		ShiftID:   1,
		Title:     "收银",
		StartTime: time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		Status:    status,
	}
}

func TestNotifyShiftsPublished(t *testing.T) {
	ch := &fakeChannel{}
	n := NewMailNotifier(ch, newDirectory(), "mail", time.Second)

	err := n.NotifyShiftsPublished(context.Background(), 10, []domain.ShiftNotification{
		notification(7, domain.ShiftStatusPublished),
		notification(8, domain.ShiftStatusPublished),
		notification(9, domain.ShiftStatusPublished),
	})
	require.NoError(t, err)

	// 停用的和不存在的工人不发邮件
	require.Len(t, ch.published, 1)
	assert.Equal(t, "mail", ch.keys[0])
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.published[0].ContentType)

	var msg struct {
		Type string                        `json:"type"`
		To   string                        `json:"to"`
		Data domain.ShiftPublishedMailData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &msg))
	assert.Equal(t, domain.MailTypeShiftPublished, msg.Type)
	assert.Equal(t, "zhangsan@example.com", msg.To)
	assert.Equal(t, "张三", msg.Data.FullName)
	assert.Equal(t, "总店", msg.Data.Location)
	assert.False(t, msg.Data.Draft)
	assert.True(t, msg.Data.StartTime.Equal(time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC)))
}

func TestNotifyShiftsPublished_Draft(t *testing.T) {
	ch := &fakeChannel{}
	n := NewMailNotifier(ch, newDirectory(), "mail", 0)

	require.NoError(t, n.NotifyShiftsPublished(context.Background(), 10, []domain.ShiftNotification{notification(7, domain.ShiftStatusDraft)}))
	require.Len(t, ch.published, 1)

	var msg struct {
		Data domain.ShiftPublishedMailData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &msg))
	assert.True(t, msg.Data.Draft)
}

func TestNotifyShiftsPublished_Errors(t *testing.T) {
	n := NewMailNotifier(&fakeChannel{}, newDirectory(), "mail", time.Second)
	err := n.NotifyShiftsPublished(context.Background(), 99, []domain.ShiftNotification{notification(7, domain.ShiftStatusPublished)})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// 单条失败不影响其它消息，错误会被合并返回
	ch := &fakeChannel{failAfter: 1}
	n = NewMailNotifier(ch, newDirectory(), "mail", time.Second)
	second := notification(7, domain.ShiftStatusPublished)
	second.ShiftID = 2
	third := notification(7, domain.ShiftStatusPublished)
	third.ShiftID = 3

	err = n.NotifyShiftsPublished(context.Background(), 10, []domain.ShiftNotification{notification(7, domain.ShiftStatusPublished), second, third})
	require.Error(t, err)
	assert.Len(t, ch.published, 1)
	assert.Contains(t, err.Error(), "班次 2")
	assert.Contains(t, err.Error(), "班次 3")

	assert.NoError(t, n.NotifyShiftsPublished(context.Background(), 10, nil))
}
