// Package auth issues and validates the opaque bearer tokens that gate
// every authenticated league operation.
package auth

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"agent-league/internal/protocol"
)

type AgentType string

const (
	TypeLeagueManager AgentType = "league_manager"
	TypeReferee       AgentType = "referee"
	TypePlayer        AgentType = "player"
)

type Identity struct {
	AgentID   string
	AgentType AgentType
}

// Manager holds the bidirectional token map under a single mutex.
// Authorization decisions gate all subsequent processing, so partial
// updates are not tolerable.
type Manager struct {
	mu     sync.Mutex
	tokens map[string]Identity // token -> identity
	agents map[string]string   // agent id -> token
}

func NewManager() *Manager {
	return &Manager{
		tokens: make(map[string]Identity),
		agents: make(map[string]string),
	}
}

// Issue returns the agent's token, minting one on first call. Re-issuing
// for a known agent ID returns the previously issued token, which lets an
// agent reconnect without re-registering.
func (m *Manager) Issue(agentID string, agentType AgentType) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.agents[agentID]; ok {
		return token
	}

	token := uuid.NewString()
	m.tokens[token] = Identity{AgentID: agentID, AgentType: agentType}
	m.agents[agentID] = token
	return token
}

func (m *Manager) Validate(token string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.tokens[token]
	if !ok {
		return Identity{}, protocol.NewAuthenticationError("Invalid or expired token")
	}
	return identity, nil
}

// VerifySender reconstructs the canonical sender string from the token's
// bound identity and rejects any mismatch, so a valid token cannot be
// replayed under a different claimed identity.
func (m *Manager) VerifySender(token, sender string) error {
	identity, err := m.Validate(token)
	if err != nil {
		return err
	}

	expected := string(identity.AgentType)
	if identity.AgentType != TypeLeagueManager {
		expected = fmt.Sprintf("%s:%s", identity.AgentType, identity.AgentID)
	}

	if sender != expected {
		return protocol.NewAuthorizationError(
			fmt.Sprintf("Sender mismatch: expected %s, got %s", expected, sender),
			expected, sender)
	}
	return nil
}

func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if identity, ok := m.tokens[token]; ok {
		delete(m.tokens, token)
		delete(m.agents, identity.AgentID)
	}
}

func (m *Manager) InvalidateAgent(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.agents[agentID]; ok {
		delete(m.tokens, token)
		delete(m.agents, agentID)
	}
}

func (m *Manager) HasToken(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.agents[agentID]
	return ok
}
