package domain

import "time"

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

const MailTypeShiftPublished = "shift_published"

// ShiftPublishedMailData 渲染班次发布通知邮件
type ShiftPublishedMailData struct {
	FullName  string    `json:"fullName"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Draft     bool      `json:"draft"`
}
