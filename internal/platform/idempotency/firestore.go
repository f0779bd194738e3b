package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps reservations in Firestore so replays work across instances.
type FirestoreStore struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[firestoreRecord]
}

type firestoreRecord struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Headers     map[string][]string `firestore:"headers"`
	Body        []byte              `firestore:"body"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

// NewFirestoreStore builds the store on provider.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	return &FirestoreStore{
		provider: provider,
		base:     pfirestore.NewBaseRepository[firestoreRecord](provider, defaultCollection),
	}, nil
}

// Reserve implements Store inside a transaction so two concurrent first requests cannot both win.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	ref, err := s.base.DocumentRef(ctx, documentID(key))
	if err != nil {
		return 0, Record{}, err
	}

	var (
		state  State
		record Record
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !pfirestore.IsNotFoundStatus(err) {
			return err
		}
		if err == nil {
			doc, decodeErr := pfirestore.Decode[firestoreRecord](snap)
			if decodeErr != nil {
				return decodeErr
			}
			if now.Before(doc.Data.ExpiresAt) {
				if doc.Data.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				record = doc.Data.toRecord()
				state = StateInFlight
				if doc.Data.Completed {
					state = StateCompleted
				}
				return nil
			}
		}
		fresh := firestoreRecord{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttlOrDefault(ttl))}
		state, record = StateNew, fresh.toRecord()
		return tx.Set(ref, fresh)
	})
	if err != nil {
		return 0, Record{}, err
	}
	return state, record, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	rec := firestoreRecord{
		Key:         key,
		Fingerprint: fingerprint,
		Completed:   true,
		Status:      resp.Status,
		Headers:     replayableHeaders(resp.Headers),
		Body:        resp.Body,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttlOrDefault(ttl)),
	}
	_, err := s.base.Set(ctx, documentID(key), rec)
	return err
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.base.Delete(ctx, documentID(key))
}

// CleanupExpired deletes up to limit expired reservations.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := s.base.Delete(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		Headers:     r.Headers,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
