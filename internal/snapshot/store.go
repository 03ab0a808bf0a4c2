package snapshot

import "context"

// Store persists one encoded snapshot per user.
type Store interface {
	// Load returns the stored snapshot, or found=false when none exists.
	Load(ctx context.Context, userID string) (snap Snapshot, found bool, err error)
	// Save replaces the stored snapshot for snap.UserID.
	Save(ctx context.Context, snap Snapshot) error
	// Update applies fn under a per-user lock. It reports found=false without
	// calling fn when no snapshot exists.
	Update(ctx context.Context, userID string, fn func(*Snapshot)) (found bool, err error)
	Close() error
}
