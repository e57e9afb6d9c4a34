package protocol

import (
	"testing"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_NoteChange(t *testing.T) {
	raw := `{"type":"UPDATE","timestamp":1700000000000,"clientId":"spoofed",
		"note":{"id":"n1","title":"X","content":"body","createdAt":"2026-03-01T12:00:00.000Z","updatedAt":"2026-03-01T12:00:05.123Z"}}`

	m, err := Decode([]byte(raw))
	require.NoError(t, err)

	msg, ok := m.(*NoteChange)
	require.True(t, ok)
	assert.Equal(t, TypeUpdate, msg.Type)
	assert.Equal(t, int64(1700000000000), msg.Timestamp)
	require.NotNil(t, msg.Note)
	assert.Equal(t, "n1", msg.Note.ID)
	assert.Equal(t, "X", *msg.Note.Title)

	n := msg.Note.ToDomain()
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 5, 123000000, time.UTC), n.UpdatedAt)
	assert.True(t, n.Valid())
}

func TestDecode_MissingCreatedAtDefaultsToUpdatedAt(t *testing.T) {
	raw := `{"type":"TAG_CREATE","timestamp":1,"tag":{"id":"t1","name":"work","updatedAt":"2026-03-01T12:00:00Z"}}`

	m, err := Decode([]byte(raw))
	require.NoError(t, err)

	msg := m.(*TagChange)
	l := msg.Tag.ToDomain()
	assert.Equal(t, l.UpdatedAt, l.CreatedAt)
}

func TestDecode_RelationAndDeletes(t *testing.T) {
	cases := []struct {
		raw  string
		want Message
	}{
		{`{"type":"DELETE","timestamp":5,"noteId":"n1"}`, &NoteDelete{Envelope: Envelope{Type: TypeDelete, Timestamp: 5}, NoteID: "n1"}},
		{`{"type":"TAG_DELETE","timestamp":5,"tagId":"t1"}`, &TagDelete{Envelope: Envelope{Type: TypeTagDelete, Timestamp: 5}, TagID: "t1"}},
		{`{"type":"CATEGORY_DELETE","timestamp":5,"categoryId":"c1"}`, &CategoryDelete{Envelope: Envelope{Type: TypeCategoryDelete, Timestamp: 5}, CategoryID: "c1"}},
		{`{"type":"RELATION_ADD","timestamp":5,"relationName":"note_tags","noteId":"n1","targetId":"t1"}`,
			&RelationChange{Envelope: Envelope{Type: TypeRelationAdd, Timestamp: 5}, RelationName: domain.RelationNoteTags, NoteID: "n1", TargetID: "t1"}},
		{`{"type":"PING","timestamp":5}`, &Ping{Envelope: Envelope{Type: TypePing, Timestamp: 5}}},
		{`{"type":"INIT","timestamp":5,"format":"flat"}`, &Init{Envelope: Envelope{Type: TypeInit, Timestamp: 5}, Format: FormatFlat}},
	}

	for _, c := range cases {
		m, err := Decode([]byte(c.raw))
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.want, m, c.raw)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	m, err := Decode([]byte(`{"type":"SHOUT","timestamp":9}`))
	require.NoError(t, err)

	u, ok := m.(*Unknown)
	require.True(t, ok)
	assert.Equal(t, Type("SHOUT"), u.Type)
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"timestamp":1}`,
		`{"type":"UPDATE","note":{"id":"n1","updatedAt":"yesterday"}}`,
		`{"type":"DELETE","noteId":42}`,
	} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, domain.ErrProtocol, raw)
	}
}

func TestEncode_AckShape(t *testing.T) {
	ack := Stamp(&Ack{OriginalTimestamp: 42, Applied: false, Error: &AckError{Code: 601, Message: "Storage failure"}},
		TypeAck, "client_1", time.UnixMilli(1000))

	data, err := Encode(ack)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ACK","timestamp":1000,"clientId":"client_1","originalTimestamp":42,"applied":false,"error":{"code":601,"message":"Storage failure"}}`, string(data))
}

func TestPayloadFromSnapshot_EmptyListsAreArrays(t *testing.T) {
	data, err := Encode(&InitResponseNorm{
		Envelope: Envelope{Type: TypeInitResponseNorm, Timestamp: 1, ClientID: "c"},
		Payload:  PayloadFromSnapshot(&domain.Snapshot{}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"INIT_RESPONSE_NORM","timestamp":1,"clientId":"c",
		"payload":{"notes":[],"tags":[],"categories":[],"relations":{"note_tags":[],"note_categories":[]}}}`, string(data))
}

// 快照经过规范化载荷往返后关联的 noteId/targetId 保持不变
func TestProperty1_PayloadPreservesRelations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("relations survive payload conversion", prop.ForAll(
		func(noteIDs []string, targetIDs []string) bool {
			snap := &domain.Snapshot{}
			for i, n := range noteIDs {
				if i >= len(targetIDs) {
					break
				}
				snap.NoteTags = append(snap.NoteTags, domain.Relation{Name: domain.RelationNoteTags, NoteID: n, TargetID: targetIDs[i]})
				snap.NoteCategories = append(snap.NoteCategories, domain.Relation{Name: domain.RelationNoteCategories, NoteID: n, TargetID: targetIDs[i]})
			}

			payload := PayloadFromSnapshot(snap)
			back := payload.ToSnapshot()
			if len(back.NoteTags) != len(snap.NoteTags) || len(back.NoteCategories) != len(snap.NoteCategories) {
				return false
			}
			for i := range snap.NoteTags {
				if back.NoteTags[i] != snap.NoteTags[i] || back.NoteCategories[i] != snap.NoteCategories[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
