package domain

import (
	"time"
)

type LeagueStatus string

const (
	LeagueInit         LeagueStatus = "INIT"
	LeagueRegistration LeagueStatus = "REGISTRATION"
	LeagueScheduling   LeagueStatus = "SCHEDULING"
	LeagueActive       LeagueStatus = "ACTIVE"
	LeagueCompleted    LeagueStatus = "COMPLETED"
)

type AgentStatus string

const (
	AgentRegistered AgentStatus = "REGISTERED"
	AgentActive     AgentStatus = "ACTIVE"
	AgentSuspended  AgentStatus = "SUSPENDED"
	AgentShutdown   AgentStatus = "SHUTDOWN"
)

type RoundStatus string

const (
	RoundPending   RoundStatus = "PENDING"
	RoundActive    RoundStatus = "ACTIVE"
	RoundCompleted RoundStatus = "COMPLETED"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "PENDING"
	MatchAssigned   MatchStatus = "ASSIGNED"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchFailed     MatchStatus = "FAILED"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

type LeagueConfig struct {
	Name        string `json:"name"`
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
	MinReferees int    `json:"min_referees"`
}

type League struct {
	LeagueID  string
	Status    LeagueStatus
	CreatedAt time.Time
	Config    LeagueConfig
}

// Agent is a referee or player registration. Agents are never deleted
// during a league's lifetime.
type Agent struct {
	AgentID      string
	LeagueID     string
	AuthToken    string
	EndpointURL  string
	Status       AgentStatus
	RegisteredAt time.Time
}

type Round struct {
	RoundID     string
	LeagueID    string
	RoundNumber int
	Status      RoundStatus
}

type Match struct {
	MatchID    string
	RoundID    string
	RefereeID  string // empty until assignment
	GameType   string
	Players    []string
	Status     MatchStatus
	AssignedAt *time.Time
}

// MatchResult is immutable once stored; at most one per match.
type MatchResult struct {
	ResultID     string
	MatchID      string
	Outcome      map[string]Outcome
	Points       map[string]int
	GameMetadata map[string]any
	ReportedAt   time.Time
}

type PlayerRanking struct {
	Rank          int    `json:"rank"`
	PlayerID      string `json:"player_id"`
	Points        int    `json:"points"`
	Wins          int    `json:"wins"`
	Draws         int    `json:"draws"`
	Losses        int    `json:"losses"`
	MatchesPlayed int    `json:"matches_played"`
}

// StandingsSnapshot is immutable; a new one is created on every
// recomputation and "current standings" is the most recent for a scope.
type StandingsSnapshot struct {
	SnapshotID string
	LeagueID   string
	RoundID    string // empty for league-wide snapshots
	ComputedAt time.Time
	Rankings   []PlayerRanking
}
