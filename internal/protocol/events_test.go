package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WireShapes(t *testing.T) {
	edited := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	c := &models.Contact{ID: "X", FirstName: "Jane", LastName: "Doe", PhoneNumber: "555", EditedAt: &edited}

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"hello", Hello{TS: 1700000000000}, `{"type":"server.hello","payload":{"ts":1700000000000}}`},
		{"created", NewContactCreated(c), `{"type":"contact.created","payload":{"id":"X","firstName":"Jane","lastName":"Doe","phoneNumber":"555"}}`},
		{"updated", NewContactUpdated(c), `{"type":"contact.updated","payload":{"id":"X","firstName":"Jane","lastName":"Doe","phoneNumber":"555","editedAt":"2024-01-01T00:00:05.000Z"}}`},
		{"deleted", ContactDeleted{ID: "X"}, `{"type":"contact.deleted","payload":{"id":"X"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			back, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tt.ev, back)
		})
	}
}

func TestDecode_UnknownTypeIsRejectedExplicitly(t *testing.T) {
	_, err := Decode([]byte(`{"type":"contact.archived","payload":{"id":"X"}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnknownEventType))
	assert.False(t, errors.Is(err, common.ErrMalformedEvent))
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{not json`,
		"payload type":    `{"type":"contact.created","payload":"oops"}`,
		"missing id":      `{"type":"contact.deleted","payload":{}}`,
		"missing payload": `{"type":"contact.updated"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestDecode_HelloWithoutPayload(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"server.hello"}`))
	require.NoError(t, err)
	assert.Equal(t, Hello{}, ev)
}

func TestContactUpdated_BadEditedAtBecomesAbsent(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"contact.updated","payload":{"id":"X","firstName":"A","lastName":"B","phoneNumber":"1","editedAt":"yesterday"}}`))
	require.NoError(t, err)

	c := ev.(ContactUpdated).Contact()
	assert.Nil(t, c.EditedAt)
	assert.True(t, c.Synced)
	assert.Equal(t, models.PendingNone, c.PendingChange)
}

func TestContactUpdated_EditedAtParsed(t *testing.T) {
	c := ContactUpdated{ID: "X", EditedAt: "2024-01-01T00:00:01Z"}.Contact()
	require.NotNil(t, c.EditedAt)
	assert.True(t, c.EditedAt.Equal(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)))
}

func TestParseAckKind(t *testing.T) {
	for _, s := range []string{"created", "updated", "deleted"} {
		k, err := ParseAckKind(s)
		require.NoError(t, err)
		assert.Equal(t, AckKind(s), k)
	}
	_, err := ParseAckKind("purged")
	assert.True(t, errors.Is(err, common.ErrInvalidRequest))
}

func TestAckFor(t *testing.T) {
	assert.Equal(t, AckCreated, AckFor(models.PendingNone))
	assert.Equal(t, AckCreated, AckFor(models.PendingCreated))
	assert.Equal(t, AckUpdated, AckFor(models.PendingUpdated))
	assert.Equal(t, AckDeleted, AckFor(models.PendingDeleted))
}

func TestTimestamp_JSON(t *testing.T) {
	var body struct {
		A *Timestamp `json:"a"`
		B *Timestamp `json:"b"`
		C *Timestamp `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-01-01T00:00:05Z","b":1704067205000,"c":null}`), &body))
	require.NotNil(t, body.A)
	require.NotNil(t, body.B)
	assert.Nil(t, body.C)
	assert.True(t, body.A.Equal(body.B.Time))

	out, err := json.Marshal(body.A)
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-01T00:00:05.000Z"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &body))
}
