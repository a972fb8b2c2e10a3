// Package config builds process configuration from environment variables so
// main stays lean. Paths to operator-supplied inputs (registry snapshot,
// keys, caps) are configuration; their contents are validated by the
// packages that load them.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the governance service configuration.
type Server struct {
	Addr string

	// RegistryPath is the policy registry snapshot. Required; the service
	// refuses to start without it.
	RegistryPath string

	// ReceiptRoot is the date-partitioned receipt store root. Empty selects
	// the in-memory store.
	ReceiptRoot string

	// SigningKeyPath enables the receipt signing tier when set.
	SigningKeyPath string

	// SpendingCapsPath is the YAML caps file for the spending gate.
	SpendingCapsPath string

	// CoverageLogPath, when set, appends observed coverage lines on every
	// evaluation. Used by policy test runs, not production.
	CoverageLogPath string

	// RunLedgerDir enables the artifact hash-chain recorder when set.
	RunLedgerDir string

	// RedisURL backs the idempotency guard when set; empty keeps the guard
	// in process memory.
	RedisURL string

	// PostgresURL backs the receipt store when set; takes precedence over
	// ReceiptRoot.
	PostgresURL string

	// KafkaBrokers and KafkaTopic enable the audit event sink when both set.
	KafkaBrokers []string
	KafkaTopic   string

	// JWTSigningKey verifies bearer tokens on mutating admin routes.
	JWTSigningKey string

	// ApproverSecretHash is the bcrypt hash approval grants must match when
	// set.
	ApproverSecretHash string

	// AuditBuffer is the audit publisher's inbox size.
	AuditBuffer int

	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:               envOr("GOVERN_ADDR", ":8080"),
		RegistryPath:       os.Getenv("GOVERN_REGISTRY_PATH"),
		ReceiptRoot:        os.Getenv("GOVERN_RECEIPT_ROOT"),
		SigningKeyPath:     os.Getenv("GOVERN_SIGNING_KEY"),
		SpendingCapsPath:   os.Getenv("GOVERN_SPENDING_CAPS"),
		CoverageLogPath:    os.Getenv("GOVERN_COVERAGE_LOG"),
		RunLedgerDir:       os.Getenv("GOVERN_RUN_LEDGER_DIR"),
		RedisURL:           os.Getenv("GOVERN_REDIS_URL"),
		PostgresURL:        os.Getenv("GOVERN_POSTGRES_URL"),
		KafkaTopic:         envOr("GOVERN_KAFKA_TOPIC", "govern.audit"),
		JWTSigningKey:      os.Getenv("GOVERN_JWT_SIGNING_KEY"),
		ApproverSecretHash: os.Getenv("GOVERN_APPROVER_SECRET_HASH"),
		AuditBuffer:        envInt("GOVERN_AUDIT_BUFFER", 1024),
		ShutdownTimeout:    10 * time.Second,
	}
	if brokers := os.Getenv("GOVERN_KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
