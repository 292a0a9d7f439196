package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

// DeadLetter captures a message that exhausted its retry budget. Rows are
// written once and never mutated; replay is an external operator action.
type DeadLetter struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID              `gorm:"column:event_id;type:uuid;not null"`
	Topic        string                 `gorm:"column:topic;not null"`
	EventType    enums.EventType        `gorm:"column:event_type;type:event_type_enum;not null"`
	Payload      json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	ErrorReason  enums.DeadLetterReason `gorm:"column:error_reason;type:dead_letter_reason_enum;not null"`
	ErrorMessage *string                `gorm:"column:error_message"`
	Source       enums.DeadLetterSource `gorm:"column:source;type:dead_letter_source_enum;not null"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time              `gorm:"column:failed_at;autoCreateTime"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}
