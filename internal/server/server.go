// Package server implements the League Manager HTTP surface: the
// JSON-RPC endpoint every agent talks to, plus health and status
// endpoints for operators.
package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"agent-league/internal/auth"
	"agent-league/internal/config"
	"agent-league/internal/middleware"
	"agent-league/internal/protocol"
	"agent-league/internal/repository"
	"agent-league/internal/service"
)

type Server struct {
	cfg       *config.Config
	logger    zerolog.Logger
	state     *service.LeagueState
	auth      *auth.Manager
	agents    *repository.AgentRepository
	rounds    *repository.RoundRepository
	matches   *repository.MatchRepository
	results   *repository.ResultRepository
	scheduler *service.Scheduler
	assigner  *service.MatchAssigner
	standings *service.StandingsEngine
}

func NewServer(
	cfg *config.Config,
	logger zerolog.Logger,
	state *service.LeagueState,
	authManager *auth.Manager,
	agents *repository.AgentRepository,
	rounds *repository.RoundRepository,
	matches *repository.MatchRepository,
	results *repository.ResultRepository,
	scheduler *service.Scheduler,
	assigner *service.MatchAssigner,
	standings *service.StandingsEngine,
) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		state:     state,
		auth:      authManager,
		agents:    agents,
		rounds:    rounds,
		matches:   matches,
		results:   results,
		scheduler: scheduler,
		assigner:  assigner,
		standings: standings,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Registration and admin messages are processed before any token exists,
// so they bypass the auth gate. Everything else requires a valid token
// whose bound identity matches the envelope sender.
var authExempt = map[protocol.MessageType]struct{}{
	protocol.RegisterRefereeRequest:  {},
	protocol.RegisterPlayerRequest:   {},
	protocol.AdminStartLeagueRequest: {},
	protocol.AdminGetStatusRequest:   {},
}

var responseTypes = map[protocol.MessageType]protocol.MessageType{
	protocol.RegisterRefereeRequest:  protocol.RegisterRefereeResponse,
	protocol.RegisterPlayerRequest:   protocol.RegisterPlayerResponse,
	protocol.AgentReadyRequest:       protocol.AgentReadyResponse,
	protocol.MatchResultReport:       protocol.MatchResultAck,
	protocol.QueryStandings:          protocol.StandingsResponse,
	protocol.AdminStartLeagueRequest: protocol.AdminStartLeagueResponse,
	protocol.AdminGetStatusRequest:   protocol.AdminGetStatusResponse,
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, protocol.NewErrorResponse(
			protocol.NewError(protocol.CodeInvalidJSONRPC, "Failed to read request body", nil), nil))
		return
	}

	req, requestID, perr := protocol.DecodeRequest(body)
	if perr != nil {
		writeResponse(w, protocol.NewErrorResponse(perr, optionalID(requestID)))
		return
	}

	env, perr := protocol.DecodeEnvelope(req.Params.Envelope)
	if perr != nil {
		writeResponse(w, protocol.NewErrorResponse(perr, &requestID))
		return
	}

	logger := s.logger.With().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Logger()
	logger.Info().
		Str("message_type", env.MessageType).
		Str("sender", env.Sender).
		Str("conversation_id", env.ConversationID).
		Msg("handling message")

	msgType := protocol.MessageType(env.MessageType)
	if _, exempt := authExempt[msgType]; !exempt {
		if env.AuthToken == "" {
			writeResponse(w, protocol.NewErrorResponse(
				protocol.NewAuthenticationError("Missing auth_token"), &requestID))
			return
		}
		if err := s.auth.VerifySender(env.AuthToken, env.Sender); err != nil {
			writeResponse(w, protocol.NewErrorResponse(protocol.AsError(err), &requestID))
			return
		}
	}

	payload, perr := s.dispatch(r, env, req.Params.Payload)
	if perr != nil {
		logger.Warn().
			Int("code", int(perr.Code)).
			Str("error_code", perr.Code.Name()).
			Str("message_type", env.MessageType).
			Msg(perr.Message)
		writeResponse(w, protocol.NewErrorResponse(perr, &requestID))
		return
	}

	responseType, ok := responseTypes[msgType]
	if !ok {
		// Valid envelope but a type the manager never receives, e.g. a
		// referee-to-player message sent here by mistake.
		writeResponse(w, protocol.NewErrorResponse(
			protocol.NewError(protocol.CodeInvalidMessageType,
				"Message type not handled by league manager",
				map[string]any{"message_type": env.MessageType}), &requestID))
		return
	}

	responseEnv := protocol.Envelope{
		Protocol:       protocol.Version,
		MessageType:    string(responseType),
		Sender:         "league_manager",
		Timestamp:      protocol.UTCNow(),
		ConversationID: env.ConversationID,
		LeagueID:       s.state.LeagueID(),
	}
	writeResponse(w, protocol.NewSuccessResponse(responseEnv, payload, requestID))
}

func (s *Server) dispatch(r *http.Request, env *protocol.Envelope, payload json.RawMessage) (any, *protocol.Error) {
	ctx := r.Context()

	switch protocol.MessageType(env.MessageType) {
	case protocol.RegisterRefereeRequest:
		return s.handleRegisterReferee(ctx, env, payload)
	case protocol.RegisterPlayerRequest:
		return s.handleRegisterPlayer(ctx, env, payload)
	case protocol.AgentReadyRequest:
		return s.handleAgentReady(ctx, env)
	case protocol.MatchResultReport:
		return s.handleMatchResult(ctx, env, payload)
	case protocol.QueryStandings:
		return s.handleQueryStandings(ctx, env)
	case protocol.AdminStartLeagueRequest:
		return s.handleAdminStartLeague(ctx, env)
	case protocol.AdminGetStatusRequest:
		return s.handleAdminGetStatus(ctx)
	default:
		return nil, protocol.NewError(protocol.CodeInvalidMessageType,
			"Message type not handled by league manager",
			map[string]any{"message_type": env.MessageType})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"league_id": s.state.LeagueID(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	referees, err := s.state.RefereeCount(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	players, err := s.state.PlayerCount(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"league_id":     s.state.LeagueID(),
		"league_status": s.state.Status(),
		"referee_count": referees,
		"player_count":  players,
	})
}

// writeResponse always answers HTTP 200; success or failure lives in the
// JSON-RPC result/error body, not the transport status.
func writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
