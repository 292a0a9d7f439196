package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

const maxLastErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

func (r *Repository) FindByAggregate(tx *gorm.DB, eventType enums.EventType, aggregateType enums.AggregateType, aggregateID uuid.UUID) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var row models.OutboxEvent
	err := tx.Where("event_type = ? AND aggregate_type = ? AND aggregate_id = ?", eventType, aggregateType, aggregateID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var row models.OutboxEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ClaimBatch leases up to limit pending rows to claimedBy, oldest first.
// Rows whose backoff window has not elapsed, or whose lease is still live,
// are skipped. Only rows whose conditional claim update landed are returned,
// so two replicas never hold the same row inside one lease window.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit int, claimedBy string, lease time.Duration, now time.Time) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if limit <= 0 || claimedBy == "" {
		return nil, errors.New("limit and claimant are required")
	}

	query := tx.Model(&models.OutboxEvent{}).
		Where("status = ?", enums.OutboxStatusPending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Where("claim_expires_at IS NULL OR claim_expires_at <= ?", now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var candidates []models.OutboxEvent
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, row := range candidates {
		ids = append(ids, row.ID)
	}

	deadline := now.Add(lease)
	update := tx.Model(&models.OutboxEvent{}).
		Where("id IN ?", ids).
		Where("status = ?", enums.OutboxStatusPending).
		Where("claim_expires_at IS NULL OR claim_expires_at <= ?", now).
		Updates(map[string]any{
			"claimed_by":       claimedBy,
			"claim_expires_at": deadline,
		})
	if update.Error != nil {
		return nil, update.Error
	}

	var claimed []models.OutboxEvent
	err := tx.Where("id IN ?", ids).
		Where("claimed_by = ?", claimedBy).
		Where("claim_expires_at = ?", deadline).
		Order("created_at ASC").
		Order("id ASC").
		Find(&claimed).Error
	return claimed, err
}

// MarkPublishedTx transitions pending -> published, but only while claimedBy
// still owns the row. Returns false when the claim was lost (lease expired
// and another replica took over); the caller must not record the publish.
func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID, claimedBy, brokerMessageID string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	updates := map[string]any{
		"status":           enums.OutboxStatusPublished,
		"published_at":     time.Now().UTC(),
		"claimed_by":       nil,
		"claim_expires_at": nil,
	}
	if brokerMessageID != "" {
		updates["broker_message_id"] = brokerMessageID
	}
	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Where("status = ?", enums.OutboxStatusPending).
		Where("claimed_by = ?", claimedBy).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailedTx records a transient failure: bump attempt_count, stash the
// error, schedule the next attempt, release the claim.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error, nextAttemptAt time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":       truncateError(cause),
			"attempt_count":    gorm.Expr("attempt_count + 1"),
			"next_attempt_at":  nextAttemptAt,
			"claimed_by":       nil,
			"claim_expires_at": nil,
		}).Error
}

// MarkTerminalTx transitions pending -> failed once the retry budget is
// spent. The companion dead letter row is written by the caller in the same
// transaction.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Where("status = ?", enums.OutboxStatusPending).
		Updates(map[string]any{
			"status":           enums.OutboxStatusFailed,
			"last_error":       truncateError(cause),
			"attempt_count":    terminalAttempts,
			"claimed_by":       nil,
			"claim_expires_at": nil,
		}).Error
}

// ReleaseClaims frees every lease held by claimedBy. Called on graceful
// shutdown so a restart does not wait out the lease.
func (r *Repository) ReleaseClaims(ctx context.Context, claimedBy string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("claimed_by = ?", claimedBy).
		Where("status = ?", enums.OutboxStatusPending).
		Updates(map[string]any{
			"claimed_by":       nil,
			"claim_expires_at": nil,
		}).Error
}

// DeletePublishedBefore prunes published rows older than cutoff.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusPublished).
		Where("published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
