package constants

import "time"

const (
	// Outbound agent-to-agent calls. A timed-out move request is a forfeit,
	// never a retry.
	MoveTimeout     = 30 * time.Second
	DeliveryTimeout = 10 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	// Admin-start waits for at least one referee to finish its ready
	// handshake before assigning matches; on timeout it proceeds anyway.
	RefereeReadyPollInterval = 1 * time.Second
	RefereeReadyMaxWait      = 30 * time.Second
)

const (
	DatabaseTimeout   = 5 * time.Second
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	ForfeitWinnerPoints = 3
	ForfeitLoserPoints  = 0
)
