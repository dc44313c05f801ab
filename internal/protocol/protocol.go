// Package protocol implements the league.v2 envelope structure, message
// type definitions, and validation rules, together with the JSON-RPC 2.0
// framing used by every agent.
package protocol

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	Version        = "league.v2"
	JSONRPCVersion = "2.0"
	// Method is the single JSON-RPC method shared by every message type;
	// dispatch is by the envelope's message_type field.
	Method = "league.handle"
)

type MessageType string

const (
	// League Manager - Referee messages
	RegisterRefereeRequest  MessageType = "REGISTER_REFEREE_REQUEST"
	RegisterRefereeResponse MessageType = "REGISTER_REFEREE_RESPONSE"
	MatchAssignment         MessageType = "MATCH_ASSIGNMENT"
	MatchAssignmentAck      MessageType = "MATCH_ASSIGNMENT_ACK"
	MatchResultReport       MessageType = "MATCH_RESULT_REPORT"
	MatchResultAck          MessageType = "MATCH_RESULT_ACK"

	// League Manager - Player messages
	RegisterPlayerRequest  MessageType = "REGISTER_PLAYER_REQUEST"
	RegisterPlayerResponse MessageType = "REGISTER_PLAYER_RESPONSE"
	QueryStandings         MessageType = "QUERY_STANDINGS"
	StandingsResponse      MessageType = "STANDINGS_RESPONSE"

	// League Manager - Agent Ready messages
	AgentReadyRequest  MessageType = "AGENT_READY_REQUEST"
	AgentReadyResponse MessageType = "AGENT_READY_RESPONSE"

	// League Manager - Admin messages
	AdminStartLeagueRequest  MessageType = "ADMIN_START_LEAGUE_REQUEST"
	AdminStartLeagueResponse MessageType = "ADMIN_START_LEAGUE_RESPONSE"
	AdminGetStatusRequest    MessageType = "ADMIN_GET_STATUS_REQUEST"
	AdminGetStatusResponse   MessageType = "ADMIN_GET_STATUS_RESPONSE"

	// Referee - Player messages
	GameInvitation MessageType = "GAME_INVITATION"
	GameJoinAck    MessageType = "GAME_JOIN_ACK"
	RequestMove    MessageType = "REQUEST_MOVE"
	MoveResponse   MessageType = "MOVE_RESPONSE"
	GameOver       MessageType = "GAME_OVER"
)

var messageTypes = map[MessageType]struct{}{
	RegisterRefereeRequest:   {},
	RegisterRefereeResponse:  {},
	MatchAssignment:          {},
	MatchAssignmentAck:       {},
	MatchResultReport:        {},
	MatchResultAck:           {},
	RegisterPlayerRequest:    {},
	RegisterPlayerResponse:   {},
	QueryStandings:           {},
	StandingsResponse:        {},
	AgentReadyRequest:        {},
	AgentReadyResponse:       {},
	AdminStartLeagueRequest:  {},
	AdminStartLeagueResponse: {},
	AdminGetStatusRequest:    {},
	AdminGetStatusResponse:   {},
	GameInvitation:           {},
	GameJoinAck:              {},
	RequestMove:              {},
	MoveResponse:             {},
	GameOver:                 {},
}

func (m MessageType) Valid() bool {
	_, ok := messageTypes[m]
	return ok
}

// Envelope is the protocol metadata wrapper attached to every message
// payload: routing identity, correlation, and audit fields.
type Envelope struct {
	Protocol       string `json:"protocol"`
	MessageType    string `json:"message_type"`
	Sender         string `json:"sender"`
	Timestamp      string `json:"timestamp"`
	ConversationID string `json:"conversation_id"`

	AuthToken string `json:"auth_token,omitempty"`
	LeagueID  string `json:"league_id,omitempty"`
	RoundID   string `json:"round_id,omitempty"`
	MatchID   string `json:"match_id,omitempty"`
	GameType  string `json:"game_type,omitempty"`
}

var senderPattern = regexp.MustCompile(`^(referee|player):[a-zA-Z0-9_-]+$`)

// Validate checks every envelope field against the league.v2 rules. Any
// violation yields a typed error carrying the offending field name.
func (e *Envelope) Validate() *Error {
	for field, value := range map[string]string{
		"protocol":        e.Protocol,
		"message_type":    e.MessageType,
		"sender":          e.Sender,
		"timestamp":       e.Timestamp,
		"conversation_id": e.ConversationID,
	} {
		if value == "" {
			return NewError(CodeMissingRequiredField,
				fmt.Sprintf("Missing required envelope field: %s", field),
				map[string]any{"field": field})
		}
	}

	if e.Protocol != Version {
		return NewError(CodeInvalidProtocolVersion,
			fmt.Sprintf("Invalid protocol version: %s", e.Protocol),
			map[string]any{"expected": Version, "actual": e.Protocol})
	}

	if !MessageType(e.MessageType).Valid() {
		return NewError(CodeInvalidMessageType,
			fmt.Sprintf("Unknown message type: %s", e.MessageType),
			map[string]any{"message_type": e.MessageType})
	}

	if err := ValidateSender(e.Sender); err != nil {
		return err
	}
	if err := ValidateTimestamp(e.Timestamp); err != nil {
		return err
	}
	if err := ValidateUUID(e.ConversationID, "conversation_id"); err != nil {
		return err
	}
	return nil
}

// ValidateSender accepts league_manager, admin, referee:<id>, and
// player:<id> where id is non-empty alphanumeric/underscore/hyphen.
func ValidateSender(sender string) *Error {
	if sender == "league_manager" || sender == "admin" {
		return nil
	}
	if !senderPattern.MatchString(sender) {
		return NewError(CodeInvalidSenderFormat,
			fmt.Sprintf("Invalid sender format: %s", sender),
			map[string]any{
				"field":           "sender",
				"expected_format": "league_manager|admin|referee:<id>|player:<id>",
			})
	}
	return nil
}

// ValidateTimestamp requires ISO-8601 with a zero UTC offset.
func ValidateTimestamp(timestamp string) *Error {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return NewError(CodeInvalidTimestamp,
			fmt.Sprintf("Invalid timestamp format: %s", timestamp),
			map[string]any{"field": "timestamp"})
	}
	if _, offset := t.Zone(); offset != 0 {
		return NewError(CodeInvalidTimestamp,
			fmt.Sprintf("Timestamp must be UTC: %s", timestamp),
			map[string]any{"field": "timestamp"})
	}
	return nil
}

func ValidateUUID(value, field string) *Error {
	if _, err := uuid.Parse(value); err != nil {
		return NewError(CodeInvalidEnvelopeField,
			fmt.Sprintf("Invalid UUID format for %s: %s", field, value),
			map[string]any{"field": field})
	}
	return nil
}

// NewConversationID returns a fresh UUID v4 correlation ID.
func NewConversationID() string {
	return uuid.NewString()
}

// UTCNow returns the current time formatted per the protocol timestamp
// rules.
func UTCNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
