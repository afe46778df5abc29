package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageKeepsPayloadRaw(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"offer","payload":{"offer":{"type":"offer","sdp":"v=0"},"meeting_id":"m1"}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeOffer, msg.Type)

	var offer OfferPayload
	require.NoError(t, msg.Decode(&offer))
	assert.Equal(t, "m1", offer.MeetingID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.Offer))
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeWithoutPayload(t *testing.T) {
	msg := &Message{Type: TypeReadyForCall}
	req := ReadyForCallPayload{MeetingID: "keep"}
	require.NoError(t, msg.Decode(&req))
	assert.Equal(t, "keep", req.MeetingID)
}

func TestEncodeUsesWireFieldNames(t *testing.T) {
	msg, err := NewMessage(TypeStartCall, StartCallPayload{Doctor: "conn1", Patient: "conn2"})
	require.NoError(t, err)

	raw, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start-call","payload":{"doctor":"conn1","patient":"conn2"}}`, string(raw))

	msg, err = NewMessage(TypeForceDisconnect, ForceDisconnectPayload{})
	require.NoError(t, err)
	raw, err = msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"force-disconnect","payload":{}}`, string(raw))
}

func TestRoleCounterpart(t *testing.T) {
	assert.Equal(t, RolePatient, RoleDoctor.Counterpart())
	assert.Equal(t, RoleDoctor, RolePatient.Counterpart())

	sc := StartCallPayload{Doctor: "conn1", Patient: "conn2"}
	assert.Equal(t, "conn1", sc.ConnFor(RoleDoctor))
	assert.Equal(t, "conn2", sc.ConnFor(RoleDoctor.Counterpart()))
}
