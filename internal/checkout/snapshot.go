package checkout

import (
	"context"

	"github.com/go-faster/errors"
)

// Snapshot is the caller's cart at one point in time.
type Snapshot struct {
	UserID string
	Lines  []CartLine
}

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

// Reader loads cart snapshots.
type Reader struct {
	Store Store
}

// Snapshot returns the user's cart. An empty cart is not an error.
func (r *Reader) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	lines, err := r.Store.CartLines(ctx, userID)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "load cart")
	}
	return Snapshot{UserID: userID, Lines: lines}, nil
}
