package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/openmarketlabs/relay-backend/pkg/db"
	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
)

// DomainEvent is what producing services hand to the recorder.
type DomainEvent struct {
	EventType     enums.EventType
	AggregateType enums.AggregateType
	AggregateID   uuid.UUID
	Source        string
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

// Service records domain events inside the caller's transaction. If that
// transaction commits, the event is durably queued; if it rolls back, no
// event row exists.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Record inserts a pending outbox row as part of tx and returns its ID.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, event DomainEvent) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, relayerrors.New(relayerrors.CodeTransaction, "recorder requires an active transaction")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.EventType.IsValid() {
		return uuid.Nil, relayerrors.New(relayerrors.CodeSerialization, "unknown event type "+string(event.EventType))
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return uuid.Nil, relayerrors.Wrap(relayerrors.CodeSerialization, err, "encoding event data")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	eventID := uuid.New()
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Source:     event.Source,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return uuid.Nil, relayerrors.Wrap(relayerrors.CodeSerialization, err, "encoding envelope")
	}
	row := models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
		Status:        enums.OutboxStatusPending,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return uuid.Nil, err
	}
	if s.logg != nil {
		fields := map[string]any{
			"event_id":       eventID.String(),
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}
		logCtx := s.logg.WithFields(ctx, fields)
		s.logg.Info(logCtx, "outbox event queued")
	}
	return eventID, nil
}

// RecordIfNotExists records unless an identical (type, aggregate) pending or
// published event already exists. Used by emitters that may run more than
// once for the same state change.
func (s *Service) RecordIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, relayerrors.New(relayerrors.CodeTransaction, "recorder requires an active transaction")
	}
	existing, err := s.repo.FindByAggregate(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	id, err := s.Record(ctx, tx, event)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_outbox_events_event_aggregate") {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return id, nil
}
