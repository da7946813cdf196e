package feed

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

func runServer(t *testing.T) *natsserver.Server {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func watch(t *testing.T, url, subject string) *nats.Subscription {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	return sub
}

func nextMessage(t *testing.T, sub *nats.Subscription) (*nats.Msg, Message) {
	t.Helper()
	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var m Message
	require.NoError(t, json.Unmarshal(msg.Data, &m))
	return msg, m
}

func TestPublish(t *testing.T) {
	ns := runServer(t)
	sub := watch(t, ns.ClientURL(), DefaultSubjectPrefix+".>")

	pub, err := Connect(ns.ClientURL(), "", zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	p := session.Proposal{ID: "p1", SessionID: "s1", Text: "buy widget", Status: session.Pending}
	require.NoError(t, pub.Publish("s1", session.ProposalCreated{Proposal: p}))

	msg, m := nextMessage(t, sub)
	assert.Equal(t, "approval.sessions.s1", msg.Subject)
	assert.Equal(t, session.EventProposalCreated, m.Type)
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, "buy widget", m.Proposal.Text)
	assert.False(t, m.PublishedAt.IsZero())
}

func TestCustomPrefix(t *testing.T) {
	ns := runServer(t)
	sub := watch(t, ns.ClientURL(), "team.approvals.*")

	pub, err := Connect(ns.ClientURL(), "team.approvals", nil)
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "team.approvals.abc", pub.Subject("abc"))
	require.NoError(t, pub.Publish("abc", session.ProposalUpdated{Proposal: session.Proposal{ID: "p", Status: session.Rejected}}))

	msg, m := nextMessage(t, sub)
	assert.Equal(t, "team.approvals.abc", msg.Subject)
	assert.Equal(t, session.EventProposalUpdated, m.Type)
	assert.Equal(t, session.Rejected, m.Proposal.Status)
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}

func TestPublishAfterClose(t *testing.T) {
	ns := runServer(t)
	pub, err := Connect(ns.ClientURL(), "", nil)
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	assert.Eventually(t, func() bool {
		return pub.Publish("s", session.ProposalCreated{}) != nil
	}, 2*time.Second, 10*time.Millisecond)
}

// TestServiceMirrorsEventsToFeed runs a full submit/decide round through the
// service and checks the feed sees both events in commit order.
func TestServiceMirrorsEventsToFeed(t *testing.T) {
	ns := runServer(t)
	pub, err := Connect(ns.ClientURL(), "", nil)
	require.NoError(t, err)
	defer pub.Close()

	b := broadcast.NewBroadcaster(4, nil, nil)
	defer b.Close()
	svc := service.New(session.NewStore(), b, nil, service.WithPublisher(pub))
	defer svc.Close()
	s := svc.CreateSession()
	sub := watch(t, ns.ClientURL(), pub.Subject(s.ID))

	p, err := svc.SubmitProposal(s.ID, "deploy")
	require.NoError(t, err)
	_, err = svc.SubmitDecision(s.ID, p.ID, true)
	require.NoError(t, err)

	_, first := nextMessage(t, sub)
	_, second := nextMessage(t, sub)
	assert.Equal(t, session.EventProposalCreated, first.Type)
	assert.Equal(t, session.EventProposalUpdated, second.Type)
	assert.Equal(t, session.Approved, second.Proposal.Status)
}
