package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/config"
	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/ws"
)

func startServer(t *testing.T) (*service.Service, string) {
	t.Helper()
	cfg := config.Default()
	b := broadcast.NewBroadcaster(cfg.Stream.BufferSize, nil, nil)
	svc := service.New(session.NewStore(), b, nil)
	srv := httptest.NewServer(ws.NewServer(cfg, svc, nil).Handler())
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return svc, srv.URL
}

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSessionCreateAndGet(t *testing.T) {
	svc, url := startServer(t)

	out, err := execute(t, NewRootCommand(), "", "--server", url, "session", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "Session Created")
	require.Equal(t, 1, svc.Stats().Sessions)

	s := svc.CreateSession()
	_, err = svc.SubmitProposal(s.ID, "ship it")
	require.NoError(t, err)

	out, err = execute(t, NewRootCommand(), "", "--server", url, "session", "get", s.ID)
	require.NoError(t, err)
	var got session.Session
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, s.ID, got.ID)
	require.Len(t, got.Proposals, 1)
	assert.Equal(t, "ship it", got.Proposals[0].Text)
}

func TestSessionGetUnknown(t *testing.T) {
	_, url := startServer(t)
	_, err := execute(t, NewRootCommand(), "", "--server", url, "session", "get", "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestServerFromEnvironment(t *testing.T) {
	svc, url := startServer(t)
	t.Setenv("APPROVAL_SERVER", url)

	_, err := execute(t, NewRootCommand(), "", "session", "create")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Stats().Sessions)
}

func TestProposeAgainstServer(t *testing.T) {
	svc, url := startServer(t)
	s := svc.CreateSession()

	// Approve whatever becomes pending.
	go func() {
		deadline := time.Now().Add(4 * time.Second)
		for time.Now().Before(deadline) {
			cur, err := svc.GetSession(s.ID)
			if err == nil {
				if p, ok := cur.Pending(); ok {
					_, _ = svc.SubmitDecision(s.ID, p.ID, true)
					return
				}
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	out, err := execute(t, NewRootCommand(), "roll out v2\n", "--server", url, "propose", "--session", s.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Proposal Sent")
	assert.Contains(t, out, "APPROVED")

	got, err := svc.GetSession(s.ID)
	require.NoError(t, err)
	require.Len(t, got.Proposals, 1)
	assert.Equal(t, session.Approved, got.Proposals[0].Status)
}

func TestApproveRequiresSession(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "", "approve")
	assert.ErrorContains(t, err, `required flag(s) "session" not set`)
}
