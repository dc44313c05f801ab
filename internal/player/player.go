// Package player implements the player agent: it registers with the
// league manager, joins games on invitation, and answers move requests
// using a configured strategy.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"agent-league/internal/config"
	"agent-league/internal/protocol"
	"agent-league/internal/strategy"
	"agent-league/internal/transport"
)

type Player struct {
	cfg        *config.Config
	logger     zerolog.Logger
	client     *transport.Client
	strategies *strategy.Registry

	mu       sync.Mutex
	token    string
	leagueID string
}

func New(cfg *config.Config, logger zerolog.Logger, client *transport.Client, strategies *strategy.Registry) *Player {
	return &Player{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		strategies: strategies,
	}
}

func (p *Player) sender() string {
	return "player:" + p.cfg.AgentID
}

func (p *Player) envelope(messageType protocol.MessageType) protocol.Envelope {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	return protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(messageType),
		Sender:         p.sender(),
		Timestamp:      protocol.UTCNow(),
		ConversationID: protocol.NewConversationID(),
		AuthToken:      token,
	}
}

func (p *Player) Register(ctx context.Context) error {
	env := p.envelope(protocol.RegisterPlayerRequest)
	env.AuthToken = ""
	payload := map[string]any{
		"player_id": p.cfg.AgentID,
		"endpoint":  p.cfg.EndpointURL,
	}

	result, err := p.client.Send(ctx, p.cfg.ManagerURL, env, payload)
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

	p.mu.Lock()
	p.token = resp.AuthToken
	p.leagueID = resp.LeagueID
	p.mu.Unlock()

	p.logger.Info().
		Str("player_id", p.cfg.AgentID).
		Str("league_id", resp.LeagueID).
		Msg("registered with league manager")
	return nil
}

func (p *Player) SendReady(ctx context.Context) error {
	env := p.envelope(protocol.AgentReadyRequest)
	if _, err := p.client.Send(ctx, p.cfg.ManagerURL, env, map[string]any{}); err != nil {
		return fmt.Errorf("ready signal failed: %w", err)
	}
	p.logger.Info().Str("player_id", p.cfg.AgentID).Msg("signalled ready")
	return nil
}

// QueryStandings fetches the latest published standings from the
// manager.
func (p *Player) QueryStandings(ctx context.Context) (any, error) {
	env := p.envelope(protocol.QueryStandings)
	result, err := p.client.Send(ctx, p.cfg.ManagerURL, env, map[string]any{})
	if err != nil {
		return nil, err
	}
	return result.Payload, nil
}

func (p *Player) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", p.handleRPC)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "player_id": p.cfg.AgentID})
	})
	return mux
}

func (p *Player) handleRPC(w http.ResponseWriter, req *http.Request) {
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

	var (
		responseType protocol.MessageType
		payload      any
		handlerErr   *protocol.Error
	)
	switch protocol.MessageType(env.MessageType) {
	case protocol.GameInvitation:
		responseType = protocol.GameJoinAck
		payload, handlerErr = p.handleInvitation(env, rpcReq.Params.Payload)
	case protocol.RequestMove:
		responseType = protocol.MoveResponse
		payload, handlerErr = p.handleMoveRequest(env, rpcReq.Params.Payload)
	case protocol.GameOver:
		// GAME_OVER has no dedicated ack type; the echo carries the
		// acknowledgement payload.
		responseType = protocol.GameOver
		payload, handlerErr = p.handleGameOver(env, rpcReq.Params.Payload)
	default:
		handlerErr = protocol.NewError(protocol.CodeInvalidMessageType,
			"Message type not handled by player",
			map[string]any{"message_type": env.MessageType})
	}
	if handlerErr != nil {
		writeRPC(w, protocol.NewErrorResponse(handlerErr, &requestID))
		return
	}

	responseEnv := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(responseType),
		Sender:         p.sender(),
		Timestamp:      protocol.UTCNow(),
		ConversationID: env.ConversationID,
		MatchID:        env.MatchID,
	}
	writeRPC(w, protocol.NewSuccessResponse(responseEnv, payload, requestID))
}

func (p *Player) handleInvitation(env *protocol.Envelope, raw json.RawMessage) (any, *protocol.Error) {
	var invitation struct {
		MatchID  string   `json:"match_id"`
		GameType string   `json:"game_type"`
		Players  []string `json:"players"`
	}
	if err := json.Unmarshal(raw, &invitation); err != nil || invitation.MatchID == "" {
		return nil, protocol.NewValidationError("Malformed invitation payload", "")
	}

	p.logger.Info().
		Str("match_id", invitation.MatchID).
		Str("game_type", invitation.GameType).
		Msg("joined game")

	return map[string]any{
		"status":    "joined",
		"match_id":  invitation.MatchID,
		"player_id": p.cfg.AgentID,
	}, nil
}

func (p *Player) handleMoveRequest(env *protocol.Envelope, raw json.RawMessage) (any, *protocol.Error) {
	var request struct {
		MatchID   string         `json:"match_id"`
		GameState map[string]any `json:"game_state"`
	}
	if err := json.Unmarshal(raw, &request); err != nil || request.GameState == nil {
		return nil, protocol.NewValidationError("Malformed move request payload", "")
	}

	gameType := env.GameType
	if gameType == "" {
		gameType = p.cfg.GameType
	}
	strat, err := p.strategies.Get(gameType, p.cfg.Strategy)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeConfigurationError, err.Error(), nil)
	}

	move, err := strat.ChooseMove(request.GameState)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInternalError,
			fmt.Sprintf("Strategy failed to choose a move: %s", err), nil)
	}

	p.logger.Debug().
		Str("match_id", request.MatchID).
		Interface("move", move).
		Msg("chose move")

	return map[string]any{
		"match_id": request.MatchID,
		"move":     move,
	}, nil
}

func (p *Player) handleGameOver(env *protocol.Envelope, raw json.RawMessage) (any, *protocol.Error) {
	var notice struct {
		MatchID string                  `json:"match_id"`
		Outcome map[string]string       `json:"outcome"`
		Points  map[string]json.Number `json:"points"`
	}
	if err := json.Unmarshal(raw, &notice); err != nil {
		return nil, protocol.NewValidationError("Malformed game over payload", "")
	}

	p.logger.Info().
		Str("match_id", notice.MatchID).
		Str("outcome", notice.Outcome[p.cfg.AgentID]).
		Msg("game over")

	return map[string]any{
		"status":   "acknowledged",
		"match_id": notice.MatchID,
	}, nil
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
