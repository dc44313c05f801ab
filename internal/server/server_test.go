package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-league/internal/auth"
	"agent-league/internal/config"
	"agent-league/internal/database"
	"agent-league/internal/domain"
	"agent-league/internal/protocol"
	"agent-league/internal/repository"
	"agent-league/internal/service"
)

// recordingSender accepts every assignment delivery and keeps the
// payloads so tests can see which matches went out.
type recordingSender struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (s *recordingSender) Send(_ context.Context, _ string, _ protocol.Envelope, payload any) (*protocol.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		s.payloads = append(s.payloads, m)
	}
	return &protocol.Result{}, nil
}

func (s *recordingSender) assignments() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.payloads...)
}

type fixture struct {
	ts     *httptest.Server
	sender *recordingSender
	rounds *repository.RoundRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		LeagueID:    "league-1",
		LeagueName:  "test league",
		GameType:    "tic_tac_toe",
		MinPlayers:  2,
		MaxPlayers:  16,
		MinReferees: 1,
		DBPath:      filepath.Join(t.TempDir(), "league.db"),
	}
	logger := zerolog.Nop()

	db, err := database.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	leagues := repository.NewLeagueRepository(db, logger)
	agents := repository.NewAgentRepository(db, logger)
	rounds := repository.NewRoundRepository(db, logger)
	matches := repository.NewMatchRepository(db, logger)
	results := repository.NewResultRepository(db, logger)
	standingsRepo := repository.NewStandingsRepository(db, logger)

	state := service.NewLeagueState(cfg, leagues, agents, logger)
	require.NoError(t, state.Initialize(context.Background()))

	sender := &recordingSender{}
	srv := NewServer(cfg, logger, state, auth.NewManager(),
		agents, rounds, matches, results,
		service.NewScheduler(rounds, matches, logger),
		service.NewMatchAssigner(agents, rounds, matches, sender, logger),
		service.NewStandingsEngine(agents, results, standingsRepo, logger))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, sender: sender, rounds: rounds}
}

type rpcReply struct {
	result map[string]any
	rpcErr *protocol.ErrorObject
}

func (f *fixture) call(t *testing.T, messageType protocol.MessageType, sender, token string, payload any) rpcReply {
	t.Helper()

	env := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(messageType),
		Sender:         sender,
		Timestamp:      protocol.UTCNow(),
		ConversationID: protocol.NewConversationID(),
		AuthToken:      token,
	}
	return f.send(t, env, payload)
}

func (f *fixture) send(t *testing.T, env protocol.Envelope, payload any) rpcReply {
	t.Helper()

	body, err := protocol.EncodeRequest(env, payload, uuid.NewString())
	require.NoError(t, err)

	resp, err := http.Post(f.ts.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Result *struct {
			Envelope protocol.Envelope `json:"envelope"`
			Payload  map[string]any    `json:"payload"`
		} `json:"result"`
		Error *protocol.ErrorObject `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	if decoded.Error != nil {
		return rpcReply{rpcErr: decoded.Error}
	}
	require.NotNil(t, decoded.Result)
	assert.Equal(t, env.ConversationID, decoded.Result.Envelope.ConversationID)
	assert.Equal(t, "league_manager", decoded.Result.Envelope.Sender)
	return rpcReply{result: decoded.Result.Payload}
}

func (f *fixture) registerReferee(t *testing.T, id string) string {
	t.Helper()
	reply := f.call(t, protocol.RegisterRefereeRequest, "referee:"+id, "",
		map[string]any{"referee_id": id, "endpoint": "http://" + id})
	require.Nil(t, reply.rpcErr)
	token, _ := reply.result["auth_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (f *fixture) registerPlayer(t *testing.T, id string) string {
	t.Helper()
	reply := f.call(t, protocol.RegisterPlayerRequest, "player:"+id, "",
		map[string]any{"player_id": id, "endpoint": "http://" + id})
	require.Nil(t, reply.rpcErr)
	token, _ := reply.result["auth_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (f *fixture) ready(t *testing.T, sender, token string) {
	t.Helper()
	reply := f.call(t, protocol.AgentReadyRequest, sender, token, map[string]any{})
	require.Nil(t, reply.rpcErr)
	assert.Equal(t, "ACTIVE", reply.result["agent_state"])
}

func TestFullLeagueFlow(t *testing.T) {
	f := newFixture(t)

	refToken := f.registerReferee(t, "ref_1")
	f.ready(t, "referee:ref_1", refToken)

	playerTokens := map[string]string{}
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		playerTokens[id] = f.registerPlayer(t, id)
		f.ready(t, "player:"+id, playerTokens[id])
	}

	start := f.call(t, protocol.AdminStartLeagueRequest, "admin", "", map[string]any{})
	require.Nil(t, start.rpcErr)
	assert.Equal(t, "started", start.result["status"])
	assert.EqualValues(t, 6, start.result["total_matches"])
	assert.GreaterOrEqual(t, start.result["total_rounds"], float64(3))
	assert.EqualValues(t, 6, start.result["assignments_sent"])

	assignments := f.sender.assignments()
	require.Len(t, assignments, 6)

	// The referee reports every match: the lexicographically first player
	// of each pairing wins.
	for _, assignment := range assignments {
		matchID := assignment["match_id"].(string)
		players := assignment["players"].([]string)
		reply := f.call(t, protocol.MatchResultReport, "referee:ref_1", refToken,
			map[string]any{
				"match_id": matchID,
				"outcome":  map[string]string{players[0]: "win", players[1]: "loss"},
				"points":   map[string]int{players[0]: 3, players[1]: 0},
			})
		require.Nil(t, reply.rpcErr, "match %s", matchID)
		assert.Equal(t, "result_recorded", reply.result["status"])
	}

	// All matches done: the league auto-completes.
	status := f.call(t, protocol.AdminGetStatusRequest, "admin", "", map[string]any{})
	require.Nil(t, status.rpcErr)
	assert.Equal(t, "COMPLETED", status.result["status"])

	// Every round closed along with its last match.
	rounds, err := f.rounds.ListByLeague(context.Background(), "league-1")
	require.NoError(t, err)
	require.NotEmpty(t, rounds)
	for _, round := range rounds {
		assert.Equal(t, domain.RoundCompleted, round.Status)
	}

	standings := f.call(t, protocol.QueryStandings, "player:alice", playerTokens["alice"], map[string]any{})
	require.Nil(t, standings.rpcErr)

	rankings := standings.result["rankings"].([]any)
	require.Len(t, rankings, 4)

	// alice beats everyone, so she is first with 9 points; ranks are
	// contiguous from 1.
	first := rankings[0].(map[string]any)
	assert.Equal(t, "alice", first["player_id"])
	assert.EqualValues(t, 9, first["points"])
	for i, r := range rankings {
		ranking := r.(map[string]any)
		assert.EqualValues(t, i+1, ranking["rank"])
	}
}

func TestRoundScopedStandingsQuery(t *testing.T) {
	f := newFixture(t)

	refToken := f.registerReferee(t, "ref_1")
	f.ready(t, "referee:ref_1", refToken)
	playerTokens := map[string]string{}
	for _, id := range []string{"alice", "bob"} {
		playerTokens[id] = f.registerPlayer(t, id)
		f.ready(t, "player:"+id, playerTokens[id])
	}

	start := f.call(t, protocol.AdminStartLeagueRequest, "admin", "", map[string]any{})
	require.Nil(t, start.rpcErr)

	assignments := f.sender.assignments()
	require.Len(t, assignments, 1)
	matchID := assignments[0]["match_id"].(string)
	roundID := assignments[0]["round_id"].(string)
	players := assignments[0]["players"].([]string)

	// The referee reports with the round scope in the envelope, the way
	// live referees do.
	reportEnv := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(protocol.MatchResultReport),
		Sender:         "referee:ref_1",
		Timestamp:      protocol.UTCNow(),
		ConversationID: protocol.NewConversationID(),
		AuthToken:      refToken,
		RoundID:        roundID,
		MatchID:        matchID,
	}
	report := f.send(t, reportEnv, map[string]any{
		"match_id": matchID,
		"outcome":  map[string]string{players[0]: "win", players[1]: "loss"},
		"points":   map[string]int{players[0]: 3, players[1]: 0},
	})
	require.Nil(t, report.rpcErr)

	// A query scoped to that round sees the snapshot the report produced.
	queryEnv := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(protocol.QueryStandings),
		Sender:         "player:alice",
		Timestamp:      protocol.UTCNow(),
		ConversationID: protocol.NewConversationID(),
		AuthToken:      playerTokens["alice"],
		RoundID:        roundID,
	}
	scoped := f.send(t, queryEnv, map[string]any{})
	require.Nil(t, scoped.rpcErr)
	rankings := scoped.result["rankings"].([]any)
	require.Len(t, rankings, 2)
	first := rankings[0].(map[string]any)
	assert.Equal(t, "alice", first["player_id"])
	assert.EqualValues(t, 3, first["points"])

	// An unscoped query still returns the latest snapshot.
	unscoped := f.call(t, protocol.QueryStandings, "player:alice", playerTokens["alice"], map[string]any{})
	require.Nil(t, unscoped.rpcErr)
	assert.Len(t, unscoped.result["rankings"].([]any), 2)
}

func TestPlayerRegistrationRequiresReferee(t *testing.T) {
	f := newFixture(t)

	reply := f.call(t, protocol.RegisterPlayerRequest, "player:alice", "",
		map[string]any{"player_id": "alice", "endpoint": "http://alice"})
	require.NotNil(t, reply.rpcErr)
	assert.Equal(t, int(protocol.CodePreconditionFailed), reply.rpcErr.Code)
}

func TestDuplicateRegistration(t *testing.T) {
	f := newFixture(t)
	f.registerReferee(t, "ref_1")

	reply := f.call(t, protocol.RegisterRefereeRequest, "referee:ref_1", "",
		map[string]any{"referee_id": "ref_1", "endpoint": "http://other"})
	require.NotNil(t, reply.rpcErr)
	assert.Equal(t, int(protocol.CodeDuplicateRegistration), reply.rpcErr.Code)
}

func TestRegistrationClosesOnStart(t *testing.T) {
	f := newFixture(t)

	refToken := f.registerReferee(t, "ref_1")
	f.ready(t, "referee:ref_1", refToken)
	for _, id := range []string{"alice", "bob"} {
		token := f.registerPlayer(t, id)
		f.ready(t, "player:"+id, token)
	}

	start := f.call(t, protocol.AdminStartLeagueRequest, "admin", "", map[string]any{})
	require.Nil(t, start.rpcErr)

	reply := f.call(t, protocol.RegisterPlayerRequest, "player:late", "",
		map[string]any{"player_id": "late", "endpoint": "http://late"})
	require.NotNil(t, reply.rpcErr)
	assert.Equal(t, int(protocol.CodeRegistrationClosed), reply.rpcErr.Code)
}

func TestStartWithoutQuorum(t *testing.T) {
	f := newFixture(t)
	f.registerReferee(t, "ref_1")

	reply := f.call(t, protocol.AdminStartLeagueRequest, "admin", "", map[string]any{})
	require.NotNil(t, reply.rpcErr)
	assert.Equal(t, int(protocol.CodePreconditionFailed), reply.rpcErr.Code)
}

func TestDuplicateResultRejected(t *testing.T) {
	f := newFixture(t)

	refToken := f.registerReferee(t, "ref_1")
	f.ready(t, "referee:ref_1", refToken)
	for _, id := range []string{"alice", "bob"} {
		token := f.registerPlayer(t, id)
		f.ready(t, "player:"+id, token)
	}
	start := f.call(t, protocol.AdminStartLeagueRequest, "admin", "", map[string]any{})
	require.Nil(t, start.rpcErr)

	assignments := f.sender.assignments()
	require.NotEmpty(t, assignments)
	matchID := assignments[0]["match_id"].(string)
	players := assignments[0]["players"].([]string)

	result := map[string]any{
		"match_id": matchID,
		"outcome":  map[string]string{players[0]: "win", players[1]: "loss"},
		"points":   map[string]int{players[0]: 3, players[1]: 0},
	}
	first := f.call(t, protocol.MatchResultReport, "referee:ref_1", refToken, result)
	require.Nil(t, first.rpcErr)

	second := f.call(t, protocol.MatchResultReport, "referee:ref_1", refToken, result)
	require.NotNil(t, second.rpcErr)
	assert.Equal(t, int(protocol.CodeDuplicateResult), second.rpcErr.Code)
}

func TestAuthenticatedMessageWithoutToken(t *testing.T) {
	f := newFixture(t)

	reply := f.call(t, protocol.QueryStandings, "player:alice", "", map[string]any{})
	require.NotNil(t, reply.rpcErr)
	assert.Equal(t, int(protocol.CodeAuthenticationFailed), reply.rpcErr.Code)
}

func TestTokenBoundToSender(t *testing.T) {
	f := newFixture(t)
	refToken := f.registerReferee(t, "ref_1")

	// A referee token replayed under a player identity is rejected.
	reply := f.call(t, protocol.QueryStandings, "player:ref_1", refToken, map[string]any{})
	require.NotNil(t, reply.rpcErr)
	assert.Equal(t, int(protocol.CodeAuthorizationFailed), reply.rpcErr.Code)
}

func TestMalformedRequestEchoesID(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"jsonrpc":"2.0","method":"wrong.method","params":{},"id":"echo-me"}`)
	resp, err := http.Post(f.ts.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Error *protocol.ErrorObject `json:"error"`
		ID    *string               `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, int(protocol.CodeInvalidMethod), decoded.Error.Code)
	require.NotNil(t, decoded.ID)
	assert.Equal(t, "echo-me", *decoded.ID)
}

func TestUnparseableRequestHasNullID(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.ts.URL+"/mcp", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))

	id, ok := raw["id"]
	require.True(t, ok, "id field must be present")
	assert.Equal(t, "null", string(id))
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(f.ts.URL + "/status")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&status))
	assert.Equal(t, "league-1", status["league_id"])
	assert.Equal(t, "REGISTRATION", status["league_status"])
}
