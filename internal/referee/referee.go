// Package referee implements the referee agent: it registers with the
// league manager, accepts match assignments, runs each match against the
// players, and reports results back.
package referee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"agent-league/internal/config"
	"agent-league/internal/game"
	"agent-league/internal/protocol"
	"agent-league/internal/transport"
)

type Referee struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *transport.Client
	games  *game.Registry

	mu       sync.Mutex
	token    string
	leagueID string
	running  map[string]struct{} // match IDs currently executing
}

func New(cfg *config.Config, logger zerolog.Logger, client *transport.Client, games *game.Registry) *Referee {
	return &Referee{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		games:   games,
		running: make(map[string]struct{}),
	}
}

func (r *Referee) sender() string {
	return "referee:" + r.cfg.AgentID
}

func (r *Referee) authToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *Referee) envelope(messageType protocol.MessageType) protocol.Envelope {
	return protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(messageType),
		Sender:         r.sender(),
		Timestamp:      protocol.UTCNow(),
		ConversationID: protocol.NewConversationID(),
		AuthToken:      r.authToken(),
	}
}

// Register announces this referee to the league manager and stores the
// issued token for all subsequent calls.
func (r *Referee) Register(ctx context.Context) error {
	env := r.envelope(protocol.RegisterRefereeRequest)
	env.AuthToken = ""
	payload := map[string]any{
		"referee_id": r.cfg.AgentID,
		"endpoint":   r.cfg.EndpointURL,
	}

	result, err := r.client.Send(ctx, r.cfg.ManagerURL, env, payload)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	var resp struct {
		AuthToken string `json:"auth_token"`
		LeagueID  string `json:"league_id"`
	}
	if err := decodePayload(result.Payload, &resp); err != nil {
		return fmt.Errorf("malformed registration response: %w", err)
	}
	if resp.AuthToken == "" {
		return fmt.Errorf("registration response missing auth_token")
	}

	r.mu.Lock()
	r.token = resp.AuthToken
	r.leagueID = resp.LeagueID
	r.mu.Unlock()

	r.logger.Info().
		Str("referee_id", r.cfg.AgentID).
		Str("league_id", resp.LeagueID).
		Msg("registered with league manager")
	return nil
}

// SendReady signals the manager that this referee can accept matches.
func (r *Referee) SendReady(ctx context.Context) error {
	env := r.envelope(protocol.AgentReadyRequest)
	if _, err := r.client.Send(ctx, r.cfg.ManagerURL, env, map[string]any{}); err != nil {
		return fmt.Errorf("ready signal failed: %w", err)
	}
	r.logger.Info().Str("referee_id", r.cfg.AgentID).Msg("signalled ready")
	return nil
}

func (r *Referee) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", r.handleRPC)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "referee_id": r.cfg.AgentID})
	})
	return mux
}

func (r *Referee) handleRPC(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeRPC(w, protocol.NewErrorResponse(
			protocol.NewError(protocol.CodeInvalidJSONRPC, "Failed to read request body", nil), nil))
		return
	}

	rpcReq, requestID, perr := protocol.DecodeRequest(body)
	if perr != nil {
		writeRPC(w, protocol.NewErrorResponse(perr, optionalID(requestID)))
		return
	}
	env, perr := protocol.DecodeEnvelope(rpcReq.Params.Envelope)
	if perr != nil {
		writeRPC(w, protocol.NewErrorResponse(perr, &requestID))
		return
	}

	if protocol.MessageType(env.MessageType) != protocol.MatchAssignment {
		writeRPC(w, protocol.NewErrorResponse(
			protocol.NewError(protocol.CodeInvalidMessageType,
				"Message type not handled by referee",
				map[string]any{"message_type": env.MessageType}), &requestID))
		return
	}

	var assignment assignmentPayload
	if err := json.Unmarshal(rpcReq.Params.Payload, &assignment); err != nil || assignment.MatchID == "" {
		writeRPC(w, protocol.NewErrorResponse(
			protocol.NewValidationError("Malformed assignment payload", ""), &requestID))
		return
	}

	r.mu.Lock()
	if _, dup := r.running[assignment.MatchID]; dup {
		r.mu.Unlock()
		writeRPC(w, protocol.NewErrorResponse(
			protocol.NewError(protocol.CodeDuplicateResult,
				fmt.Sprintf("Match %s is already running", assignment.MatchID), nil), &requestID))
		return
	}
	r.running[assignment.MatchID] = struct{}{}
	r.mu.Unlock()

	r.logger.Info().
		Str("match_id", assignment.MatchID).
		Strs("players", assignment.Players).
		Msg("accepted match assignment")

	// The ack goes back immediately; the match itself runs in the
	// background so the manager's delivery call never waits on gameplay.
	go r.runMatch(assignment)

	ack := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(protocol.MatchAssignmentAck),
		Sender:         r.sender(),
		Timestamp:      protocol.UTCNow(),
		ConversationID: env.ConversationID,
		MatchID:        assignment.MatchID,
	}
	writeRPC(w, protocol.NewSuccessResponse(ack, map[string]any{
		"status":   "accepted",
		"match_id": assignment.MatchID,
	}, requestID))
}

func decodePayload(payload any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func writeRPC(w http.ResponseWriter, resp *protocol.Response) {
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
