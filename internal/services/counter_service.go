package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const (
	defaultOrderNumberPrefix = "TA"
	orderNumberSuffixLength  = 4
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
	Prefix     string
	// Suffix returns the random tail appended to every order number. Defaults to ulid entropy.
	Suffix func() string
}

type counterService struct {
	repo   repositories.CounterRepository
	clock  func() time.Time
	prefix string
	suffix func() string
}

// NewCounterService constructs a service that issues order numbers on top of the counter repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.Prefix))
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	suffix := deps.Suffix
	if suffix == nil {
		suffix = randomOrderSuffix
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		prefix: prefix,
		suffix: suffix,
	}, nil
}

// NextOrderNumber returns PREFIX-YYYYMMDD-NNNNNN-XXXX. The daily sequence guarantees uniqueness; the
// suffix keeps numbers from being guessable.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	now := s.clock()
	day := now.Format("20060102")

	value, err := s.next(ctx, "orders:"+day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%06d-%s", s.prefix, day, value, s.suffix()), nil
}

func (s *counterService) next(ctx context.Context, counterID string) (int64, error) {
	value, err := s.repo.Next(ctx, counterID, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return 0, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return 0, err
	}
	return value, nil
}

func randomOrderSuffix() string {
	id := ulid.Make().String()
	return id[len(id)-orderNumberSuffixLength:]
}
