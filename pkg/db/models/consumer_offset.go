package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsumerOffset is the per-(topic, consumer group) commit cursor. Each group
// owns its row exclusively; it only ever advances, and only after the
// handler's own writes have committed.
type ConsumerOffset struct {
	Topic          string     `gorm:"column:topic;primaryKey"`
	ConsumerGroup  string     `gorm:"column:consumer_group;primaryKey"`
	CommittedCount int64      `gorm:"column:committed_count;not null;default:0"`
	LastEventID    *uuid.UUID `gorm:"column:last_event_id;type:uuid"`
	CommittedAt    *time.Time `gorm:"column:committed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides gorm's pluralization.
func (ConsumerOffset) TableName() string {
	return "consumer_offsets"
}
