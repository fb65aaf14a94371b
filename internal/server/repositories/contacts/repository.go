// Package contacts provides the server-side contact repositories: a
// PostgreSQL implementation and an in-memory one with identical semantics.
package contacts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/models"
)

// Repository is the authoritative server record store. Every method is a
// single atomic step for the id it touches.
type Repository interface {
	// Insert stores a new record. A duplicate id yields common.ErrConflict.
	Insert(ctx context.Context, c *models.Contact) error

	// GetByID yields common.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*models.Contact, error)

	// ApplyUpdate applies patch if editedAt is strictly newer than the stored
	// timestamp (or the stored one is absent) and the record is not
	// soft-deleted. The applied record is marked synced=false,
	// pendingChange=updated. When the write loses it returns the current
	// record and false. An unknown id yields common.ErrNotFound.
	ApplyUpdate(ctx context.Context, id string, patch models.Patch, editedAt time.Time) (*models.Contact, bool, error)

	// SoftDelete marks the record deleted and pending. Unknown ids yield
	// common.ErrNotFound.
	SoftDelete(ctx context.Context, id string) (*models.Contact, error)

	// Acknowledge clears the pending state after the peer confirmed a create
	// or an update. An ack for a change that is no longer pending is a no-op.
	Acknowledge(ctx context.Context, id string, kind models.PendingChange) error

	// Remove physically deletes a soft-deleted record. Missing ids succeed.
	Remove(ctx context.Context, id string) error

	ListPending(ctx context.Context) ([]*models.Contact, error)
	ListVisible(ctx context.Context) ([]*models.Contact, error)
}
