package protocol

import (
	"github.com/dmitrijs2005/contactsync/internal/models"
)

// ContactRecord is the REST representation of a stored record.
type ContactRecord struct {
	ID            string     `json:"id"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	PhoneNumber   string     `json:"phoneNumber"`
	IsSynced      bool       `json:"isSynced"`
	IsSoftDeleted bool       `json:"isSoftDeleted"`
	PendingChange *string    `json:"pendingChange"`
	EditedAt      *Timestamp `json:"editedAt"`
}

// RecordFrom converts a stored record for the wire.
func RecordFrom(c *models.Contact) ContactRecord {
	r := ContactRecord{
		ID:            c.ID,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		PhoneNumber:   c.PhoneNumber,
		IsSynced:      c.Synced,
		IsSoftDeleted: c.SoftDeleted,
		EditedAt:      TimestampFrom(c.EditedAt),
	}
	if c.PendingChange != models.PendingNone {
		p := string(c.PendingChange)
		r.PendingChange = &p
	}
	return r
}

// RecordsFrom converts a slice; the result is never nil so it encodes as [].
func RecordsFrom(cs []*models.Contact) []ContactRecord {
	out := make([]ContactRecord, 0, len(cs))
	for _, c := range cs {
		out = append(out, RecordFrom(c))
	}
	return out
}

// Contact converts a wire record back into the model. Unknown pending values
// are treated as absent.
func (r ContactRecord) Contact() *models.Contact {
	c := &models.Contact{
		ID:          r.ID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		PhoneNumber: r.PhoneNumber,
		Synced:      r.IsSynced,
		SoftDeleted: r.IsSoftDeleted,
		EditedAt:    r.EditedAt.Ptr(),
	}
	if r.PendingChange != nil {
		if p, err := models.ParsePendingChange(*r.PendingChange); err == nil {
			c.PendingChange = p
		}
	}
	return c
}

// CreateContactRequest is the body of POST /contacts.
type CreateContactRequest struct {
	ID          string `json:"id,omitempty" validate:"omitempty,max=128"`
	FirstName   string `json:"firstName" validate:"notblank"`
	LastName    string `json:"lastName" validate:"notblank"`
	PhoneNumber string `json:"phoneNumber" validate:"notblank"`
}

// UpdateContactRequest is the body of PATCH /contacts/{id}. EditedAt is
// required; the field values are optional unless the update falls back to a
// create.
type UpdateContactRequest struct {
	FirstName   *string    `json:"firstName,omitempty" validate:"omitempty,notblank"`
	LastName    *string    `json:"lastName,omitempty" validate:"omitempty,notblank"`
	PhoneNumber *string    `json:"phoneNumber,omitempty" validate:"omitempty,notblank"`
	EditedAt    *Timestamp `json:"editedAt" validate:"-"`
}

// Patch extracts the field changes.
func (r UpdateContactRequest) Patch() models.Patch {
	return models.Patch{FirstName: r.FirstName, LastName: r.LastName, PhoneNumber: r.PhoneNumber}
}

// UpdateRequestFrom builds a full-record update body for c.
func UpdateRequestFrom(c *models.Contact) UpdateContactRequest {
	first, last, phone := c.FirstName, c.LastName, c.PhoneNumber
	return UpdateContactRequest{
		FirstName:   &first,
		LastName:    &last,
		PhoneNumber: &phone,
		EditedAt:    TimestampFrom(c.EditedAt),
	}
}

// AckRequest is the body of POST /contacts/{id}/ack.
type AckRequest struct {
	Type string `json:"type"`
}

// ErrorResponse is the body of every non-2xx REST response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// ExportResponse is the body of POST /contacts/export.
type ExportResponse struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}
