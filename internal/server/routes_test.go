package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagno/callsignal/internal/config"
	"github.com/diagno/callsignal/internal/signaling"
)

const allowedOrigin = "https://clinic.example"

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Hub) {
	t.Helper()
	hub := signaling.NewHub()
	cfg := &config.Config{AllowedOrigins: []string{allowedOrigin}}
	srv := httptest.NewServer(NewRouter(hub, cfg))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return srv, hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := signaling.NewMessage(msgType, payload)
	require.NoError(t, err)
	data, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func expect(t *testing.T, conn *websocket.Conn, msgType string) *signaling.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := signaling.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, msgType, msg.Type, string(data))
	return msg
}

func TestCallSetupOverWebsocket(t *testing.T) {
	srv, hub := newTestServer(t)
	doctor := dial(t, srv)
	patient := dial(t, srv)

	send(t, doctor, signaling.TypeJoinRoom, signaling.JoinRoomPayload{MeetingID: "m1", Role: signaling.RoleDoctor})
	expect(t, doctor, signaling.TypeJoinedRoom)

	send(t, patient, signaling.TypeJoinRoom, signaling.JoinRoomPayload{MeetingID: "m1", Role: signaling.RolePatient})
	expect(t, patient, signaling.TypeJoinedRoom)

	var fromPatient, fromDoctor signaling.StartCallPayload
	require.NoError(t, expect(t, patient, signaling.TypeStartCall).Decode(&fromPatient))
	require.NoError(t, expect(t, doctor, signaling.TypeStartCall).Decode(&fromDoctor))
	assert.Equal(t, fromDoctor, fromPatient)
	assert.NotEqual(t, fromDoctor.Doctor, fromDoctor.Patient)

	send(t, doctor, signaling.TypeOffer, signaling.OfferPayload{Offer: []byte(`{"type":"offer","sdp":"v=0"}`), MeetingID: "m1"})
	var offer signaling.OfferPayload
	require.NoError(t, expect(t, patient, signaling.TypeOffer).Decode(&offer))
	assert.Equal(t, fromDoctor.Doctor, offer.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.Offer))

	send(t, patient, signaling.TypeAnswer, signaling.AnswerPayload{Answer: []byte(`{"type":"answer","sdp":"v=0"}`), MeetingID: "m1"})
	var answer signaling.AnswerPayload
	require.NoError(t, expect(t, doctor, signaling.TypeAnswer).Decode(&answer))
	assert.Equal(t, fromDoctor.Patient, answer.From)

	room, ok := hub.Store().Room("m1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{fromDoctor.Doctor, fromDoctor.Patient}, room.ConnectionIDs())

	require.NoError(t, doctor.Close())
	var left signaling.UserDisconnectedPayload
	require.NoError(t, expect(t, patient, signaling.TypeUserDisconnected).Decode(&left))
	assert.Equal(t, signaling.UserDisconnectedPayload{UserID: fromDoctor.Doctor, Role: signaling.RoleDoctor}, left)
}

func TestTakeoverClosesPreviousSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	first := dial(t, srv)
	second := dial(t, srv)

	send(t, first, signaling.TypeJoinRoom, signaling.JoinRoomPayload{MeetingID: "m1", Role: signaling.RoleDoctor})
	expect(t, first, signaling.TypeJoinedRoom)
	send(t, second, signaling.TypeJoinRoom, signaling.JoinRoomPayload{MeetingID: "m1", Role: signaling.RoleDoctor})
	expect(t, second, signaling.TypeJoinedRoom)

	var kick signaling.ForceDisconnectPayload
	require.NoError(t, expect(t, first, signaling.TypeForceDisconnect).Decode(&kick))
	assert.Equal(t, "New doctor connection initiated", kick.Message)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestInvalidRoleIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, signaling.TypeJoinRoom, map[string]string{"meeting_id": "m1", "role": "Visitor"})
	var rerr signaling.RoomErrorPayload
	require.NoError(t, expect(t, conn, signaling.TypeRoomError).Decode(&rerr))
	assert.Equal(t, "Invalid role specified", rerr.Message)
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", allowedOrigin)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	conn.Close()
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Signaling server is healthy.", string(body))
}

func TestRoomsAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	doctor := dial(t, srv)
	send(t, doctor, signaling.TypeJoinRoom, signaling.JoinRoomPayload{MeetingID: "m7", Role: signaling.RoleDoctor, ClientID: "tab-1"})
	expect(t, doctor, signaling.TypeJoinedRoom)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []signaling.RoomSnapshot
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "m7", rooms[0].MeetingID)
	require.Len(t, rooms[0].Participants, 1)
	assert.Equal(t, "tab-1", rooms[0].Participants[0].ClientID)

	one, err := http.Get(srv.URL + "/api/rooms/m7")
	require.NoError(t, err)
	one.Body.Close()
	assert.Equal(t, http.StatusOK, one.StatusCode)

	missing, err := http.Get(srv.URL + "/api/rooms/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	stats, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	var st signaling.Stats
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(stats.Body).Decode(&st))
	assert.Equal(t, signaling.Stats{Rooms: 1, Participants: 1}, st)
}

func TestAPICORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err = http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", allowedOrigin)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "callsignal_rooms")
}

func TestStatsReporter(t *testing.T) {
	hub := signaling.NewHub()

	_, err := NewStatsReporter(hub, "not a schedule")
	assert.Error(t, err)

	quartz, err := NewStatsReporter(hub, "@every 1m")
	require.NoError(t, err)
	assert.Len(t, quartz.Entries(), 1)

	assert.Equal(t, signaling.Stats{}, ReportStats(hub))
}
