// Package database opens the PostgreSQL pool shared by the repositories.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"doclocker/internal/config"
)

// ApplicationName identifies our sessions in pg_stat_activity.
const ApplicationName = "doclocker"

const defaultTimeout = 5 * time.Second

var sqlOpen = sql.Open

// startupPing controls how long NewPostgres waits for the database to come
// up. Compose and Kubernetes routinely start the API before Postgres.
var startupPing = struct {
	attempts int
	backoff  time.Duration
}{attempts: 5, backoff: 500 * time.Millisecond}

// BuildPostgresDSN renders c as a postgres:// URL with the application name
// and, when c.Timeout is set, a connect_timeout in whole seconds.
func BuildPostgresDSN(c config.DatabaseConfig) (string, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"host", c.Host}, {"port", c.Port}, {"user", c.User}, {"name", c.Name},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("invalid database config: missing %s", strings.Join(missing, ", "))
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + c.Port,
		Path:   c.Name,
		User:   url.User(c.User),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	q := url.Values{}
	q.Set("application_name", ApplicationName)
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.Timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(math.Ceil(c.Timeout.Seconds()))))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// NewPostgres opens a traced database/sql pool on the pgx driver, applies
// the pool limits from c and waits until the server answers a ping.
func NewPostgres(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildPostgresDSN(c)
	if err != nil {
		return nil, err
	}

	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL, semconv.DBNameKey.String(c.Name)),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	configurePool(db, c)

	if err := waitForPing(ctx, db, c.Timeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configurePool(db *sql.DB, c config.DatabaseConfig) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetimeSec) * time.Second)
	}
}

// waitForPing pings up to startupPing.attempts times, each bounded by timeout.
func waitForPing(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var err error
	for attempt := 1; attempt <= startupPing.attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == startupPing.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("db ping: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * startupPing.backoff):
		}
	}
	return fmt.Errorf("db ping after %d attempts: %w", startupPing.attempts, err)
}

// RegisterPoolMetrics exposes db's connection pool statistics on reg.
func RegisterPoolMetrics(reg prometheus.Registerer, db *sql.DB) error {
	if err := reg.Register(collectors.NewDBStatsCollector(db, ApplicationName)); err != nil {
		return fmt.Errorf("register db pool metrics: %w", err)
	}
	return nil
}
