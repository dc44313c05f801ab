package referee

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-league/internal/config"
	"agent-league/internal/game"
	gametictactoe "agent-league/internal/game/tictactoe"
	"agent-league/internal/player"
	"agent-league/internal/protocol"
	"agent-league/internal/strategy"
	strattictactoe "agent-league/internal/strategy/tictactoe"
	"agent-league/internal/transport"
)

// fakeManager captures MATCH_RESULT_REPORT payloads.
type fakeManager struct {
	reports chan map[string]any
}

func newFakeManager() (*fakeManager, *httptest.Server) {
	m := &fakeManager{reports: make(chan map[string]any, 1)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req, _, perr := protocol.DecodeRequest(body)
		if perr != nil {
			_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(perr, nil))
			return
		}
		env, _ := protocol.DecodeEnvelope(req.Params.Envelope)
		if env != nil && protocol.MessageType(env.MessageType) == protocol.MatchResultReport {
			var payload map[string]any
			_ = json.Unmarshal(req.Params.Payload, &payload)
			m.reports <- payload
		}
		ack := protocol.Envelope{
			Protocol:       protocol.Version,
			MessageType:    string(protocol.MatchResultAck),
			Sender:         "league_manager",
			Timestamp:      protocol.UTCNow(),
			ConversationID: protocol.NewConversationID(),
		}
		_ = json.NewEncoder(w).Encode(protocol.NewSuccessResponse(ack, map[string]any{"status": "ok"}, req.ID))
	}))
	return m, ts
}

func newTestPlayer(t *testing.T, id string) *httptest.Server {
	t.Helper()

	strategies := strategy.NewRegistry()
	strategies.Register(gametictactoe.GameType, strattictactoe.NewSmart())
	cfg := &config.Config{AgentID: id, GameType: gametictactoe.GameType, Strategy: "smart"}
	p := player.New(cfg, zerolog.Nop(), transport.NewClient(zerolog.Nop()), strategies)

	ts := httptest.NewServer(p.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// stuckPlayer joins games but always answers move requests with the same
// cell, which becomes an illegal move on its second turn.
func stuckPlayer(t *testing.T) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req, _, perr := protocol.DecodeRequest(body)
		if perr != nil {
			_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(perr, nil))
			return
		}
		env, _ := protocol.DecodeEnvelope(req.Params.Envelope)

		responseEnv := protocol.Envelope{
			Protocol:       protocol.Version,
			MessageType:    string(protocol.MoveResponse),
			Sender:         "player:stuck",
			Timestamp:      protocol.UTCNow(),
			ConversationID: env.ConversationID,
		}
		payload := map[string]any{"status": "joined"}
		if protocol.MessageType(env.MessageType) == protocol.RequestMove {
			payload = map[string]any{"move": map[string]any{"row": 0, "col": 0}}
		}
		_ = json.NewEncoder(w).Encode(protocol.NewSuccessResponse(responseEnv, payload, req.ID))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestReferee(t *testing.T, managerURL string) *Referee {
	t.Helper()

	games := game.NewRegistry()
	games.Register(gametictactoe.GameType, gametictactoe.New)
	cfg := &config.Config{
		AgentID:    "ref_1",
		ManagerURL: managerURL,
		GameType:   gametictactoe.GameType,
	}
	return New(cfg, zerolog.Nop(), transport.NewClient(zerolog.Nop()), games)
}

func waitForReport(t *testing.T, manager *fakeManager) map[string]any {
	t.Helper()
	select {
	case report := <-manager.reports:
		return report
	case <-time.After(10 * time.Second):
		t.Fatal("no match result reported")
		return nil
	}
}

func TestRunMatchCompletes(t *testing.T) {
	manager, managerTS := newFakeManager()
	t.Cleanup(managerTS.Close)

	alice := newTestPlayer(t, "alice")
	bob := newTestPlayer(t, "bob")

	ref := newTestReferee(t, managerTS.URL+"/mcp")
	ref.runMatch(assignmentPayload{
		MatchID:  "match-1",
		RoundID:  "round-1",
		GameType: gametictactoe.GameType,
		Players:  []string{"alice", "bob"},
		PlayerEndpoints: map[string]string{
			"alice": alice.URL + "/mcp",
			"bob":   bob.URL + "/mcp",
		},
	})

	report := waitForReport(t, manager)
	assert.Equal(t, "match-1", report["match_id"])

	outcome := report["outcome"].(map[string]any)
	require.Len(t, outcome, 2)
	for _, playerID := range []string{"alice", "bob"} {
		assert.Contains(t, []any{"win", "loss", "draw"}, outcome[playerID])
	}
}

// A player that repeats an occupied cell forfeits; the opponent takes
// full points.
func TestRunMatchForfeitsIllegalMove(t *testing.T) {
	manager, managerTS := newFakeManager()
	t.Cleanup(managerTS.Close)

	alice := newTestPlayer(t, "alice")
	stuck := stuckPlayer(t)

	ref := newTestReferee(t, managerTS.URL+"/mcp")
	ref.runMatch(assignmentPayload{
		MatchID:  "match-2",
		RoundID:  "round-1",
		GameType: gametictactoe.GameType,
		Players:  []string{"alice", "stuck"},
		PlayerEndpoints: map[string]string{
			"alice": alice.URL + "/mcp",
			"stuck": stuck.URL + "/mcp",
		},
	})

	report := waitForReport(t, manager)
	outcome := report["outcome"].(map[string]any)
	points := report["points"].(map[string]any)

	assert.Equal(t, "win", outcome["alice"])
	assert.Equal(t, "loss", outcome["stuck"])
	assert.EqualValues(t, 3, points["alice"])
	assert.EqualValues(t, 0, points["stuck"])
}

// An unreachable player forfeits at the invitation stage.
func TestRunMatchForfeitsUnreachablePlayer(t *testing.T) {
	manager, managerTS := newFakeManager()
	t.Cleanup(managerTS.Close)

	alice := newTestPlayer(t, "alice")
	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	ref := newTestReferee(t, managerTS.URL+"/mcp")
	ref.runMatch(assignmentPayload{
		MatchID:  "match-3",
		RoundID:  "round-1",
		GameType: gametictactoe.GameType,
		Players:  []string{"alice", "bob"},
		PlayerEndpoints: map[string]string{
			"alice": alice.URL + "/mcp",
			"bob":   goneURL + "/mcp",
		},
	})

	report := waitForReport(t, manager)
	outcome := report["outcome"].(map[string]any)
	assert.Equal(t, "win", outcome["alice"])
	assert.Equal(t, "loss", outcome["bob"])
}
