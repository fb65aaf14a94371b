// Package services holds the server business logic. ContactService is the
// reconciliation service: it applies REST operations to the authoritative
// record store and announces every applied change on the event channel.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
	"github.com/dmitrijs2005/contactsync/internal/server/repositories/contacts"
	"github.com/google/uuid"
)

// Broadcaster fans an event out to every connected client.
type Broadcaster interface {
	Broadcast(e protocol.Event)
}

// UpdateOutcome tells the transport which status an update maps to.
type UpdateOutcome int

const (
	// UpdateApplied means the incoming write won and was broadcast.
	UpdateApplied UpdateOutcome = iota
	// UpdateRejected means the stored record was at least as new; nothing
	// changed and nothing was broadcast.
	UpdateRejected
	// UpdateCreated means the id was unknown and the update created it.
	UpdateCreated
)

type ContactService struct {
	repo   contacts.Repository
	events Broadcaster
	locks  *keyLocks
	logger logging.Logger
	newID  func() string
}

func NewContactService(repo contacts.Repository, events Broadcaster, logger logging.Logger) *ContactService {
	return &ContactService{
		repo:   repo,
		events: events,
		locks:  newKeyLocks(),
		logger: logger.With("module", "contact_service"),
		newID:  uuid.NewString,
	}
}

// Create stores a new record and announces it. A taken id yields
// common.ErrConflict.
func (s *ContactService) Create(ctx context.Context, req protocol.CreateContactRequest) (*models.Contact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id := req.ID
	if id == "" {
		id = s.newID()
	}

	c := &models.Contact{
		ID:            id,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		PhoneNumber:   req.PhoneNumber,
		PendingChange: models.PendingCreated,
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, err
	}
	s.events.Broadcast(protocol.NewContactCreated(c))
	s.logger.Info(ctx, "contact created", "id", id)
	return c, nil
}

// Update applies req under last-write-wins. An update for an unknown id
// creates the record when every field is supplied.
func (s *ContactService) Update(ctx context.Context, id string, req protocol.UpdateContactRequest) (*models.Contact, UpdateOutcome, error) {
	if id == "" {
		return nil, 0, fmt.Errorf("%w: missing id", common.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	editedAt := req.EditedAt.Time

	unlock := s.locks.Lock(id)
	defer unlock()

	c, applied, err := s.repo.ApplyUpdate(ctx, id, req.Patch(), editedAt)
	if errors.Is(err, common.ErrNotFound) {
		return s.createFromUpdate(ctx, id, req)
	}
	if err != nil {
		return nil, 0, err
	}
	if !applied {
		s.logger.Debug(ctx, "update rejected by timestamp", "id", id, "edited_at", protocol.FormatISO(editedAt))
		return c, UpdateRejected, nil
	}

	s.events.Broadcast(protocol.NewContactUpdated(c))
	s.logger.Info(ctx, "contact updated", "id", id)
	return c, UpdateApplied, nil
}

func (s *ContactService) createFromUpdate(ctx context.Context, id string, req protocol.UpdateContactRequest) (*models.Contact, UpdateOutcome, error) {
	patch := req.Patch()
	if !patch.Complete() {
		return nil, 0, fmt.Errorf("%w: unknown contact %s needs firstName, lastName and phoneNumber", common.ErrInvalidRequest, id)
	}

	c := &models.Contact{ID: id, PendingChange: models.PendingCreated, EditedAt: req.EditedAt.Ptr()}
	patch.Apply(c)

	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, 0, err
	}
	s.events.Broadcast(protocol.NewContactCreated(c))
	s.logger.Info(ctx, "contact created by update", "id", id)
	return c, UpdateCreated, nil
}

// Delete soft-deletes the record and announces it. The row stays until a
// client acknowledges the deletion.
func (s *ContactService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.events.Broadcast(protocol.ContactDeleted{ID: id})
	s.logger.Info(ctx, "contact deleted", "id", id)
	return nil
}

// Ack finalizes a change the client confirmed. Acknowledging a deletion of a
// record that is already gone succeeds.
func (s *ContactService) Ack(ctx context.Context, id string, kind protocol.AckKind) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if kind == protocol.AckDeleted {
		return s.repo.Remove(ctx, id)
	}
	return s.repo.Acknowledge(ctx, id, kind.PendingChange())
}

// Get returns the stored record, tombstones included.
func (s *ContactService) Get(ctx context.Context, id string) (*models.Contact, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPending returns the records a reconnecting client may have missed.
func (s *ContactService) ListPending(ctx context.Context) ([]*models.Contact, error) {
	return s.repo.ListPending(ctx)
}

func (s *ContactService) ListVisible(ctx context.Context) ([]*models.Contact, error) {
	return s.repo.ListVisible(ctx)
}
