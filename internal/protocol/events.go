// Package protocol is the shared vocabulary of the client and the server:
// event channel messages, acknowledgement kinds and REST payloads.
//
// Discriminators are closed sets. Decoding an unrecognized event type yields
// common.ErrUnknownEventType and parsing an unrecognized ack kind yields
// common.ErrInvalidRequest, so every tag on the wire is either handled
// explicitly or rejected explicitly.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
)

// EventType discriminates event channel messages.
type EventType string

const (
	EventHello          EventType = "server.hello"
	EventContactCreated EventType = "contact.created"
	EventContactUpdated EventType = "contact.updated"
	EventContactDeleted EventType = "contact.deleted"
)

// ParseEventType maps a wire tag onto the closed EventType set.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventHello, EventContactCreated, EventContactUpdated, EventContactDeleted:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownEventType, s)
	}
}

// Event is one of Hello, ContactCreated, ContactUpdated or ContactDeleted.
type Event interface {
	Type() EventType
	event()
}

// Hello is sent by the server once per connection.
type Hello struct {
	TS int64 `json:"ts"`
}

// ContactCreated announces a newly stored record.
type ContactCreated struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

// ContactUpdated announces an applied update. EditedAt is kept as the raw
// wire string; see Contact for how an unparseable value is treated.
type ContactUpdated struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	EditedAt    string `json:"editedAt"`
}

// ContactDeleted announces a soft delete on the server.
type ContactDeleted struct {
	ID string `json:"id"`
}

func (Hello) Type() EventType          { return EventHello }
func (ContactCreated) Type() EventType { return EventContactCreated }
func (ContactUpdated) Type() EventType { return EventContactUpdated }
func (ContactDeleted) Type() EventType { return EventContactDeleted }

func (Hello) event()          {}
func (ContactCreated) event() {}
func (ContactUpdated) event() {}
func (ContactDeleted) event() {}

// NewHello stamps a hello with t in epoch milliseconds.
func NewHello(t time.Time) Hello {
	return Hello{TS: t.UnixMilli()}
}

func NewContactCreated(c *models.Contact) ContactCreated {
	return ContactCreated{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, PhoneNumber: c.PhoneNumber}
}

func NewContactUpdated(c *models.Contact) ContactUpdated {
	e := ContactUpdated{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, PhoneNumber: c.PhoneNumber}
	if c.EditedAt != nil {
		e.EditedAt = FormatISO(*c.EditedAt)
	}
	return e
}

// Contact converts the event into a record as the client stores it.
func (e ContactCreated) Contact() *models.Contact {
	return &models.Contact{ID: e.ID, FirstName: e.FirstName, LastName: e.LastName, PhoneNumber: e.PhoneNumber, Synced: true}
}

// Contact converts the event into a record as the client stores it. An
// editedAt that fails to parse becomes absent instead of rejecting the event.
func (e ContactUpdated) Contact() *models.Contact {
	c := &models.Contact{ID: e.ID, FirstName: e.FirstName, LastName: e.LastName, PhoneNumber: e.PhoneNumber, Synced: true}
	if t, err := ParseISO(e.EditedAt); err == nil {
		c.EditedAt = &t
	}
	return c
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode renders e as {"type":...,"payload":...}.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: string(e.Type()), Payload: payload})
}

// Decode parses one event channel message. It returns an error wrapping
// common.ErrUnknownEventType for unrecognized types and
// common.ErrMalformedEvent for anything that cannot be decoded.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedEvent, err)
	}

	t, err := ParseEventType(env.Type)
	if err != nil {
		return nil, err
	}

	switch t {
	case EventHello:
		var e Hello
		if err := unmarshalPayload(t, env.Payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventContactCreated:
		var e ContactCreated
		if err := unmarshalPayload(t, env.Payload, &e); err != nil {
			return nil, err
		}
		return e, requireID(t, e.ID)
	case EventContactUpdated:
		var e ContactUpdated
		if err := unmarshalPayload(t, env.Payload, &e); err != nil {
			return nil, err
		}
		return e, requireID(t, e.ID)
	default:
		var e ContactDeleted
		if err := unmarshalPayload(t, env.Payload, &e); err != nil {
			return nil, err
		}
		return e, requireID(t, e.ID)
	}
}

func unmarshalPayload(t EventType, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", common.ErrMalformedEvent, t, err)
	}
	return nil
}

func requireID(t EventType, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s without id", common.ErrMalformedEvent, t)
	}
	return nil
}
