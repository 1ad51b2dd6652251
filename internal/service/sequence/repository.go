package sequence

import (
	"context"

	"github.com/databender/leadengine/internal/domain"
)

// Repository defines the data access contract for sequence state.
type Repository interface {
	// GetLeadByEmail returns the newest lead for an address, or (nil, nil)
	// when no lead exists.
	GetLeadByEmail(ctx context.Context, email string) (*domain.Lead, error)

	// SaveSequence replaces the lead's embedded sequence.
	SaveSequence(ctx context.Context, lead *domain.Lead, seq *domain.EmailSequence) error

	// ListActiveSequences returns every lead whose sequence status is active.
	ListActiveSequences(ctx context.Context) ([]domain.Lead, error)
}
