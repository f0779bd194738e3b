package services

import (
	"errors"
	"fmt"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

// ErrRepositoryUnavailable wraps transient storage failures. Handlers answer 503.
var ErrRepositoryUnavailable = errors.New("repository unavailable")

// mapRepositoryError translates RepositoryError categories into the calling service's sentinels. A nil
// sentinel leaves that category untouched.
func mapRepositoryError(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
