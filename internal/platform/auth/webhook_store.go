package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
)

const webhookEventsCollection = "webhookEvents"

// FirestoreEventStore persists processed vendor event ids so deduplication survives restarts
// and spans instances.
type FirestoreEventStore struct {
	base *pfirestore.BaseRepository[webhookEventDoc]
}

type webhookEventDoc struct {
	Provider  string    `firestore:"provider"`
	EventID   string    `firestore:"eventId"`
	ExpiresAt time.Time `firestore:"expiresAt"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// NewFirestoreEventStore builds the store on provider.
func NewFirestoreEventStore(provider *pfirestore.Provider) (*FirestoreEventStore, error) {
	if provider == nil {
		return nil, errors.New("auth: firestore provider is required")
	}
	return &FirestoreEventStore{base: pfirestore.NewBaseRepository[webhookEventDoc](provider, webhookEventsCollection)}, nil
}

// UseEvent creates the marker document; an existing unexpired marker means a redelivery.
func (s *FirestoreEventStore) UseEvent(ctx context.Context, scope, id string, expiry time.Time) (bool, error) {
	docID := eventDocID(scope, id)
	if docID == "" {
		return false, errors.New("auth: scope and event id are required")
	}
	doc := webhookEventDoc{Provider: scope, EventID: id, ExpiresAt: expiry.UTC(), CreatedAt: time.Now().UTC()}
	err := s.base.Create(ctx, docID, doc)
	if err == nil {
		return true, nil
	}
	if !pfirestore.IsAlreadyExists(err) {
		return false, err
	}
	existing, getErr := s.base.Get(ctx, docID)
	if getErr != nil {
		return false, getErr
	}
	if existing.Data.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	if _, err := s.base.Set(ctx, docID, doc); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseEvent deletes the marker.
func (s *FirestoreEventStore) ReleaseEvent(ctx context.Context, scope, id string) error {
	docID := eventDocID(scope, id)
	if docID == "" {
		return nil
	}
	return s.base.Delete(ctx, docID)
}

func eventDocID(scope, id string) string {
	scope = strings.TrimSpace(scope)
	id = strings.TrimSpace(id)
	if scope == "" || id == "" {
		return ""
	}
	return scope + "_" + strings.ReplaceAll(id, "/", "_")
}
