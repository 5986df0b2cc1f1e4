package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Market struct {
	// DataDir holds the Pebble database.
	DataDir string
	// EventLogPath mirrors notifications to a JSONL file; empty disables it.
	EventLogPath string
	// UnitRate is the upfront payment per unit of installation capacity.
	UnitRate int64
	// EscrowAddress is the ledger account that holds in-flight payments.
	EscrowAddress string
}

type Kafka struct {
	// Brokers empty means Kafka publishing is disabled.
	Brokers []string
	Topic   string
}

type Config struct {
	Server  Server
	Market  Market
	Kafka   Kafka
	LogFile string
}

func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Market: Market{
			DataDir:       "data/market.db",
			EventLogPath:  "data/events.log",
			UnitRate:      10,
			EscrowAddress: "0x0000000000000000000000000000000000000e5c",
		},
		Kafka: Kafka{
			Topic: "market-events",
		},
		LogFile: "data/marketd.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("MARKET_LISTEN"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("MARKET_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKET_DATA_DIR"); v != "" {
		cfg.Market.DataDir = v
	}
	if v := os.Getenv("MARKET_EVENT_LOG"); v != "" {
		cfg.Market.EventLogPath = v
	}
	if v := os.Getenv("MARKET_UNIT_RATE"); v != "" {
		if rate, err := strconv.ParseInt(v, 10, 64); err == nil && rate > 0 {
			cfg.Market.UnitRate = rate
		}
	}
	if v := os.Getenv("MARKET_ESCROW"); v != "" {
		cfg.Market.EscrowAddress = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}
