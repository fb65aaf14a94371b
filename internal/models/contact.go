// Package models holds the contact record shared by the client store and the
// server repositories, together with its sync-control fields.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/common"
)

// PendingChange is the operation a side still owes its peer.
// The empty value means nothing is owed (null on the wire).
type PendingChange string

const (
	PendingNone    PendingChange = ""
	PendingCreated PendingChange = "created"
	PendingUpdated PendingChange = "updated"
	PendingDeleted PendingChange = "deleted"
)

// ParsePendingChange accepts the persisted and wire spellings. "none" and the
// empty string both map to PendingNone.
func ParsePendingChange(s string) (PendingChange, error) {
	switch s {
	case "", "none":
		return PendingNone, nil
	case string(PendingCreated), string(PendingUpdated), string(PendingDeleted):
		return PendingChange(s), nil
	default:
		return PendingNone, fmt.Errorf("%w: unknown pending change %q", common.ErrInvalidRequest, s)
	}
}

// Contact is a single contact record. EditedAt is nil for records never
// updated after creation.
type Contact struct {
	ID            string
	FirstName     string
	LastName      string
	PhoneNumber   string
	Synced        bool
	SoftDeleted   bool
	PendingChange PendingChange
	EditedAt      *time.Time
}

// NeedsSync reports whether the record still owes its peer something.
func (c *Contact) NeedsSync() bool {
	return !c.Synced || c.SoftDeleted
}

// Visible reports whether the record may appear in user-facing listings.
func (c *Contact) Visible() bool {
	return !c.SoftDeleted
}

// NewerThan reports whether t wins over the stored edit timestamp under
// last-write-wins. An absent stored timestamp always loses; ties keep the
// stored value.
func (c *Contact) NewerThan(t *time.Time) bool {
	if t == nil {
		return false
	}
	if c.EditedAt == nil {
		return true
	}
	return t.After(*c.EditedAt)
}

// Clone returns a deep copy.
func (c *Contact) Clone() *Contact {
	cp := *c
	if c.EditedAt != nil {
		t := *c.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}

// Patch carries the optional field changes of a partial update.
type Patch struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
}

// Complete reports whether every required field is present, which is what an
// update needs to fall back to a create.
func (p Patch) Complete() bool {
	return p.FirstName != nil && p.LastName != nil && p.PhoneNumber != nil
}

// Apply copies the present fields onto c.
func (p Patch) Apply(c *Contact) {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = *p.PhoneNumber
	}
}

// Millis truncates t to millisecond precision in UTC, the resolution used on
// the wire and in both stores.
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
