package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
)

// OffsetRepository maintains the per-(topic, consumer group) commit cursor.
// The cursor only advances, and only inside the same transaction as the
// handler's writes, so a crash between handling and committing redelivers
// instead of skipping.
type OffsetRepository struct {
	db *gorm.DB
}

func NewOffsetRepository(db *gorm.DB) *OffsetRepository {
	return &OffsetRepository{db: db}
}

// CommitTx advances the cursor for one handled event.
func (r *OffsetRepository) CommitTx(tx *gorm.DB, topic, group string, eventID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if topic == "" || group == "" {
		return errors.New("topic and consumer group are required")
	}
	now := time.Now().UTC()
	row := models.ConsumerOffset{
		Topic:          topic,
		ConsumerGroup:  group,
		CommittedCount: 1,
		CommittedAt:    &now,
	}
	assignments := map[string]any{
		"committed_count": gorm.Expr("consumer_offsets.committed_count + 1"),
		"committed_at":    now,
	}
	if eventID != uuid.Nil {
		row.LastEventID = &eventID
		assignments["last_event_id"] = eventID
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic"}, {Name: "consumer_group"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
}

// Get returns the cursor for a (topic, group) pair, nil when none exists yet.
func (r *OffsetRepository) Get(ctx context.Context, topic, group string) (*models.ConsumerOffset, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var row models.ConsumerOffset
	err := r.db.WithContext(ctx).
		Where("topic = ? AND consumer_group = ?", topic, group).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
