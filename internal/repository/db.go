package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NewPool opens the ledger store connection pool.
func NewPool(ctx context.Context, dsn string, development bool, logger zerolog.Logger) (*pgxpool.Pool, error) {
	// Local databases run without TLS. In production the connection string carries its own sslmode.
	if development && !strings.Contains(dsn, "sslmode") {
		dsn = appendParam(dsn, "sslmode=disable")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing db connection string: %w", err)
	}
	// Transaction poolers such as pgbouncer cannot hold server-side prepared statements.
	if !development {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}
	logger.Info().Str("db_port", portFromDSN(dsn)).Msg("Database connection successful")
	return pool, nil
}

func appendParam(dsn, param string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&" + param
		}
		return dsn + "?" + param
	}
	return dsn + " " + param
}

// portFromDSN extracts the port from a URL-style DSN for logging.
func portFromDSN(dsn string) string {
	parts := strings.Split(dsn, ":")
	for i, part := range parts {
		if strings.Contains(part, "@") && len(parts) > i+1 {
			return strings.Split(parts[i+1], "/")[0]
		}
	}
	return "not_found"
}
