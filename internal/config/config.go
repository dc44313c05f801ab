package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"agent-league/internal/logger"
)

type Config struct {
	LeagueID    string
	LeagueName  string
	GameType    string
	MinPlayers  int
	MaxPlayers  int
	MinReferees int

	DBPath     string
	ServerPort string
	LogLevel   string

	// Agent-side settings (referee and player processes).
	AgentID     string
	ManagerURL  string
	EndpointURL string
	Strategy    string
}

func Load(log zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		LeagueID:    getEnv("LEAGUE_ID", "default-league"),
		LeagueName:  getEnv("LEAGUE_NAME", "Agent League"),
		GameType:    getEnv("GAME_TYPE", "tic_tac_toe"),
		MinPlayers:  getEnvInt("MIN_PLAYERS", 2),
		MaxPlayers:  getEnvInt("MAX_PLAYERS", 100),
		MinReferees: getEnvInt("MIN_REFEREES", 1),
		DBPath:      getEnv("DB_PATH", "league.db"),
		ServerPort:  getEnv("SERVER_PORT", "8000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AgentID:     getEnv("AGENT_ID", ""),
		ManagerURL:  getEnv("MANAGER_URL", "http://localhost:8000/mcp"),
		EndpointURL: getEnv("ENDPOINT_URL", ""),
		Strategy:    getEnv("STRATEGY", "random"),
	}

	if cfg.MinPlayers < 2 {
		return nil, fmt.Errorf("MIN_PLAYERS must be at least 2, got %d", cfg.MinPlayers)
	}
	if cfg.MinReferees < 1 {
		return nil, fmt.Errorf("MIN_REFEREES must be at least 1, got %d", cfg.MinReferees)
	}

	logger.SetLevel(cfg.LogLevel)

	log.Info().
		Str("league_id", cfg.LeagueID).
		Str("game_type", cfg.GameType).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Int("min_players", cfg.MinPlayers).
		Int("min_referees", cfg.MinReferees).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
