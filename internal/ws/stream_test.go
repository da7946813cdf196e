package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

func (f *fixture) dial(t *testing.T, sessionID, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/sessions/" + sessionID + "/subscribe?client_id=" + clientID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool {
		return f.svc.SubscriberCount(sessionID) > 0
	}, time.Second, time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (RawMessage, session.Proposal) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg RawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	var p session.Proposal
	if msg.Type != MsgError {
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
	}
	return msg, p
}

func TestSubscribeEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	s := f.createSession(t)
	conn := f.dial(t, s.ID, "approver")

	p, err := f.svc.SubmitProposal(s.ID, "buy widget")
	require.NoError(t, err)

	msg, got := readFrame(t, conn)
	assert.Equal(t, MsgProposalCreated, msg.Type)
	assert.EqualValues(t, 1, msg.Seq)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, session.Pending, got.Status)

	_, err = f.svc.SubmitDecision(s.ID, p.ID, true)
	require.NoError(t, err)

	msg, got = readFrame(t, conn)
	assert.Equal(t, MsgProposalUpdated, msg.Type)
	assert.EqualValues(t, 2, msg.Seq)
	assert.Equal(t, session.Approved, got.Status)
}

func TestSubscribeReplaysHistory(t *testing.T) {
	f := newFixture(t, nil)
	s := f.createSession(t)
	first, _ := f.svc.SubmitProposal(s.ID, "first")
	_, _ = f.svc.SubmitDecision(s.ID, first.ID, false)
	second, _ := f.svc.SubmitProposal(s.ID, "second")

	conn := f.dial(t, s.ID, "late")

	msg, got := readFrame(t, conn)
	assert.Equal(t, MsgProposalUpdated, msg.Type)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, session.Rejected, got.Status)

	msg, got = readFrame(t, conn)
	assert.Equal(t, MsgProposalCreated, msg.Type)
	assert.Equal(t, second.ID, got.ID)

	_, _ = f.svc.SubmitDecision(s.ID, second.ID, true)
	msg, got = readFrame(t, conn)
	assert.EqualValues(t, 3, msg.Seq)
	assert.Equal(t, session.Approved, got.Status)
}

func TestSubscribeUnknownSessionRefusedBeforeUpgrade(t *testing.T) {
	f := newFixture(t, nil)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/sessions/nope/subscribe"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClientDisconnectUnsubscribes(t *testing.T) {
	f := newFixture(t, nil)
	s := f.createSession(t)
	conn := f.dial(t, s.ID, "leaver")
	require.Equal(t, 1, f.svc.SubscriberCount(s.ID))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return f.svc.SubscriberCount(s.ID) == 0
	}, 2*time.Second, 5*time.Millisecond)

	_, err := f.svc.SubmitProposal(s.ID, "after disconnect")
	assert.NoError(t, err)
}

func TestShutdownSendsErrorFrame(t *testing.T) {
	f := newFixture(t, nil)
	s := f.createSession(t)
	conn := f.dial(t, s.ID, "c")

	f.broadcaster.Close()

	msg, _ := readFrame(t, conn)
	require.Equal(t, MsgError, msg.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, CodeCancelled, payload.Code)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
