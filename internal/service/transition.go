package service

import (
	"context"
	"errors"
	"fmt"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

// maxTransitionAttempts bounds compare-and-set retries for one status write.
const maxTransitionAttempts = 3

// transitionRule decides whether a status change is permitted.
type transitionRule func(from, to domain.PaymentStatus) bool

var (
	automated transitionRule = domain.PaymentStatus.CanTransitionTo
	override  transitionRule = domain.PaymentStatus.CanOverrideTo
)

// transition writes update over current using compare-and-set on the status.
// On a lost race the record is reloaded and the rule re-evaluated.
// It returns the stored record and whether the status actually changed.
func transition(
	ctx context.Context,
	payments repository.PaymentRepository,
	current *domain.Payment,
	update domain.PaymentUpdate,
	allowed transitionRule,
) (*domain.Payment, bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if attempt > 0 {
			reloaded, err := payments.GetByID(ctx, current.ID)
			if err != nil {
				return nil, false, err
			}
			current = reloaded
		}

		if !allowed(current.Status, update.Status) {
			return current, false, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.Status, update.Status)
		}

		updated, err := payments.Transition(ctx, current.ID, current.Status, update)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}

		return updated, current.Status != updated.Status, nil
	}

	return nil, false, ErrConcurrentModification
}
