package infrastructure

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"sortvision-gateway/internal/domain/eventbus/repository"
	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/storage"
)

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository stores events in the domain_events table.
func NewEventRepository(db *gorm.DB) repository.EventRepository {
	return &eventRepository{
		db: db,
	}
}

func (r *eventRepository) Store(ctx context.Context, event repository.Event) error {
	dataBytes, err := sonic.Marshal(event.Data)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.marshal", "failed to marshal event data", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	domainEvent := &storage.DomainEvent{
		EventType: event.EventType,
		ScanID:    event.ScanID,
		ClientID:  event.ClientID,
		Data:      dataBytes,
		CreatedAt: createdAt,
	}

	if err := r.db.WithContext(ctx).Create(domainEvent).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.create", "failed to store event", err)
	}
	return nil
}

func (r *eventRepository) FindByScanID(ctx context.Context, scanID string) ([]repository.Event, error) {
	var domainEvents []storage.DomainEvent
	if err := r.db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		Order("created_at ASC, id ASC").
		Find(&domainEvents).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.scan", "failed to find events by scan ID", err)
	}

	return convertDomainEvents(domainEvents)
}

func (r *eventRepository) FindByEventType(ctx context.Context, eventType string, limit int) ([]repository.Event, error) {
	var domainEvents []storage.DomainEvent
	query := r.db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&domainEvents).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.type", "failed to find events by type", err)
	}

	return convertDomainEvents(domainEvents)
}

func (r *eventRepository) FindByClientID(ctx context.Context, clientID string, limit int) ([]repository.Event, error) {
	var domainEvents []storage.DomainEvent
	query := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&domainEvents).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.client", "failed to find events by client ID", err)
	}

	return convertDomainEvents(domainEvents)
}

func (r *eventRepository) DeleteOldEvents(ctx context.Context, beforeTime time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", beforeTime).
		Delete(&storage.DomainEvent{})
	if res.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "event.delete.old", "failed to delete old events", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *eventRepository) GetEventStats(ctx context.Context) (map[string]int64, error) {
	var stats []struct {
		EventType string
		Count     int64
	}

	if err := r.db.WithContext(ctx).
		Model(&storage.DomainEvent{}).
		Select("event_type, count(*) as count").
		Group("event_type").
		Scan(&stats).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.stats", "failed to get event stats", err)
	}

	result := make(map[string]int64, len(stats))
	for _, stat := range stats {
		result[stat.EventType] = stat.Count
	}
	return result, nil
}

func convertDomainEvents(domainEvents []storage.DomainEvent) ([]repository.Event, error) {
	events := make([]repository.Event, len(domainEvents))

	for i, de := range domainEvents {
		var data interface{}
		if len(de.Data) > 0 {
			if err := sonic.Unmarshal(de.Data, &data); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "event.convert.unmarshal", "failed to unmarshal event data", err)
			}
		}

		events[i] = repository.Event{
			ID:        strconv.FormatUint(uint64(de.ID), 10),
			EventType: de.EventType,
			ScanID:    de.ScanID,
			ClientID:  de.ClientID,
			Data:      data,
			CreatedAt: de.CreatedAt,
		}
	}

	return events, nil
}
