package domain

import "time"

type AvailabilityType string

const (
	AvailabilityUnavailable AvailabilityType = "unavailable"
	AvailabilityPreferred   AvailabilityType = "preferred"
)

type Availability struct {
	ID        int64            `json:"id"`
	WorkerID  int64            `json:"workerID"`
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
	Type      AvailabilityType `json:"type"`
	Reason    string           `json:"reason"`
	CreatedAt time.Time        `json:"createdAt"`
}
