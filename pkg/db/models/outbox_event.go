package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

// OutboxEvent is an append-only event recorded in the producing service's
// transaction. The publisher loop owns the row from claim until publish or
// terminal failure; claim_expires_at bounds how long a crashed claimant can
// hold it.
type OutboxEvent struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType       enums.EventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType   enums.AggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID     uuid.UUID           `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload         json.RawMessage     `gorm:"column:payload;type:jsonb;not null"`
	Status          enums.OutboxStatus  `gorm:"column:status;type:outbox_status_enum;not null;default:pending"`
	AttemptCount    int                 `gorm:"column:attempt_count;not null;default:0"`
	LastError       *string             `gorm:"column:last_error"`
	NextAttemptAt   *time.Time          `gorm:"column:next_attempt_at"`
	ClaimedBy       *string             `gorm:"column:claimed_by"`
	ClaimExpiresAt  *time.Time          `gorm:"column:claim_expires_at"`
	BrokerMessageID *string             `gorm:"column:broker_message_id"`
	PublishedAt     *time.Time          `gorm:"column:published_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}
