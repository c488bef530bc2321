package repository

import (
	"context"
	"fmt"
	"time"

	"shakti-alert-backend/internal/models"
)

// AlertRepository handles persistence of alerts, newest first
type AlertRepository struct {
	alerts *collection[models.Alert]
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(store Store) *AlertRepository {
	return &AlertRepository{alerts: newCollection[models.Alert](store, AlertsKey)}
}

// List returns all alerts in stored order
func (r *AlertRepository) List(ctx context.Context) ([]models.Alert, error) {
	return r.alerts.list(ctx)
}

// Prepend stores alert at the head of the collection
func (r *AlertRepository) Prepend(ctx context.Context, alert models.Alert) error {
	return r.alerts.update(ctx, func(alerts []models.Alert) ([]models.Alert, error) {
		return append([]models.Alert{alert.Clone()}, alerts...), nil
	})
}

// Update applies fn to the alert with the given ID while holding the
// collection lock. fn reports whether it changed the alert; unchanged alerts
// are not written back. The returned alert is a copy of the post-fn state.
func (r *AlertRepository) Update(ctx context.Context, id string, fn func(alert *models.Alert) bool) (models.Alert, bool, error) {
	var (
		result  models.Alert
		changed bool
	)
	err := r.alerts.update(ctx, func(alerts []models.Alert) ([]models.Alert, error) {
		for i := range alerts {
			if alerts[i].ID != id {
				continue
			}
			changed = fn(&alerts[i])
			result = alerts[i].Clone()
			if !changed {
				return nil, nil
			}
			return alerts, nil
		}
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	})
	if err != nil {
		return models.Alert{}, false, err
	}
	return result, changed, nil
}

// RemoveOlderThan drops every alert created at or before cutoff. beforeWrite,
// if set, receives the removed alerts before the collection is rewritten and
// can abort the removal by returning an error.
func (r *AlertRepository) RemoveOlderThan(ctx context.Context, cutoff time.Time, beforeWrite func([]models.Alert) error) ([]models.Alert, error) {
	var removed []models.Alert
	err := r.alerts.update(ctx, func(alerts []models.Alert) ([]models.Alert, error) {
		kept := make([]models.Alert, 0, len(alerts))
		for _, a := range alerts {
			if a.Timestamp.After(cutoff) {
				kept = append(kept, a)
			} else {
				removed = append(removed, a.Clone())
			}
		}
		if len(removed) == 0 {
			return nil, nil
		}
		if beforeWrite != nil {
			if err := beforeWrite(removed); err != nil {
				return nil, err
			}
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// UpdateWithResponse applies fn to the alert with the given ID while holding
// both the alert and response collection locks. When fn returns a response,
// the changed alert and the response are written in one SetMany, so either
// both are stored or neither is. A nil response leaves the store untouched.
// The response repository must share this repository's Store.
func (r *AlertRepository) UpdateWithResponse(ctx context.Context, responses *ResponseRepository, id string, fn func(alert *models.Alert) *models.Response) (models.Alert, *models.Response, error) {
	r.alerts.mu.Lock()
	defer r.alerts.mu.Unlock()
	responses.responses.mu.Lock()
	defer responses.responses.mu.Unlock()

	alerts, err := r.alerts.load(ctx)
	if err != nil {
		return models.Alert{}, nil, err
	}

	idx := -1
	for i := range alerts {
		if alerts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Alert{}, nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}

	response := fn(&alerts[idx])
	result := alerts[idx].Clone()
	if response == nil {
		return result, nil, nil
	}

	stored, err := responses.responses.load(ctx)
	if err != nil {
		return models.Alert{}, nil, err
	}
	alertsData, err := r.alerts.encode(alerts)
	if err != nil {
		return models.Alert{}, nil, err
	}
	responsesData, err := responses.responses.encode(append([]models.Response{*response}, stored...))
	if err != nil {
		return models.Alert{}, nil, err
	}

	err = r.alerts.store.SetMany(ctx, map[string][]byte{
		r.alerts.key:            alertsData,
		responses.responses.key: responsesData,
	})
	if err != nil {
		return models.Alert{}, nil, fmt.Errorf("failed to write %s and %s: %w", r.alerts.key, responses.responses.key, err)
	}
	return result, response, nil
}
