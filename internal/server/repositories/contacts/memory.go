package contacts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
)

// MemoryRepository is a process-local Repository. It is used when the server
// runs without a database and in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.Contact
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*models.Contact)}
}

func (r *MemoryRepository) Insert(_ context.Context, c *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[c.ID]; ok {
		return fmt.Errorf("contact %s: %w", c.ID, common.ErrConflict)
	}
	r.rows[c.ID] = c.Clone()
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepository) ApplyUpdate(_ context.Context, id string, patch models.Patch, editedAt time.Time) (*models.Contact, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return nil, false, common.ErrNotFound
	}
	t := models.Millis(editedAt)
	if c.SoftDeleted || !c.NewerThan(&t) {
		return c.Clone(), false, nil
	}

	patch.Apply(c)
	c.EditedAt = &t
	c.Synced = false
	c.PendingChange = models.PendingUpdated
	return c.Clone(), true, nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, id string) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c.SoftDeleted = true
	c.Synced = false
	c.PendingChange = models.PendingDeleted
	return c.Clone(), nil
}

func (r *MemoryRepository) Acknowledge(_ context.Context, id string, kind models.PendingChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	if c.SoftDeleted {
		return nil
	}
	if c.PendingChange != models.PendingNone && c.PendingChange != kind {
		return nil
	}
	c.Synced = true
	c.PendingChange = models.PendingNone
	return nil
}

func (r *MemoryRepository) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.rows[id]; ok && c.SoftDeleted {
		delete(r.rows, id)
	}
	return nil
}

func (r *MemoryRepository) ListPending(_ context.Context) ([]*models.Contact, error) {
	out := r.filter(func(c *models.Contact) bool { return c.NeedsSync() })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListVisible(_ context.Context) ([]*models.Contact, error) {
	out := r.filter(func(c *models.Contact) bool { return c.Visible() })
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r *MemoryRepository) filter(keep func(*models.Contact) bool) []*models.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Contact, 0, len(r.rows))
	for _, c := range r.rows {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}
