package protocol

import (
	"fmt"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
)

// AckKind names the change a peer confirms having applied.
type AckKind string

const (
	AckCreated AckKind = "created"
	AckUpdated AckKind = "updated"
	AckDeleted AckKind = "deleted"
)

// ParseAckKind maps a wire tag onto the closed AckKind set.
func ParseAckKind(s string) (AckKind, error) {
	switch k := AckKind(s); k {
	case AckCreated, AckUpdated, AckDeleted:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown ack type %q", common.ErrInvalidRequest, s)
	}
}

// AckFor returns the acknowledgement owed for a pending change received from
// the server. Records without a pending change are acknowledged as created.
func AckFor(p models.PendingChange) AckKind {
	switch p {
	case models.PendingUpdated:
		return AckUpdated
	case models.PendingDeleted:
		return AckDeleted
	default:
		return AckCreated
	}
}

// PendingChange is the server-side pending state this ack clears.
func (k AckKind) PendingChange() models.PendingChange {
	return models.PendingChange(k)
}
