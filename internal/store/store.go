// Package store persists completed generation outcomes for a user. The
// pipeline itself never reads them back.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agri-pipeline/internal/common/metrics"
	"agri-pipeline/internal/models"
)

type Record struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Kind        models.RequestKind `json:"kind"`
	Payload     json.RawMessage    `json:"payload"`
	GeneratedAt time.Time          `json:"generatedAt"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NewRecord encodes payload and assigns a fresh ID.
func NewRecord(userID string, kind models.RequestKind, payload interface{}, generatedAt time.Time) (*Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", kind, err)
	}
	return &Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        kind,
		Payload:     body,
		GeneratedAt: generatedAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (r *Record) validate() error {
	if r.ID == "" || r.UserID == "" || r.Kind == "" {
		return fmt.Errorf("record requires id, userId and kind")
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("record %s has no payload", r.ID)
	}
	return nil
}

type Store interface {
	Save(ctx context.Context, rec *Record) error
	Backend() string
}

func observe(backend string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	metrics.ResultsPersisted.WithLabelValues(backend, outcome).Inc()
}
