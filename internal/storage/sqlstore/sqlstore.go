// Package sqlstore writes samples to PostgreSQL or MySQL, one row per
// series value.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"liebert/internal/bus"
	"liebert/internal/config"
	liberrors "liebert/internal/errors"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/resilience"
	"liebert/internal/security"
)

const Name = "builtin.sql"

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var tableRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// Execer is the part of *sql.DB the store needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

type Settings struct {
	Driver string
	DSN    security.SecureString
	Table  string
}

// SettingsFromConfig reads builtin.sql.driver, dsn and table.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if err := cfg.Require(Name+".driver", Name+".dsn", Name+".table"); err != nil {
		return Settings{}, err
	}
	s := Settings{
		Driver: cfg.MustGet(Name + ".driver"),
		DSN:    security.NewSecureString(cfg.MustGet(Name + ".dsn")),
		Table:  cfg.MustGet(Name + ".table"),
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	if s.Driver != DriverPostgres && s.Driver != DriverMySQL {
		return liberrors.ConfigError(Name+".driver", "must be postgres or mysql")
	}
	if !tableRegex.MatchString(s.Table) {
		return liberrors.ConfigError(Name+".table", "must be a plain SQL identifier")
	}
	return nil
}

// Store is a plugin.Sink backed by a SQL database.
type Store struct {
	settings Settings
	db       Execer
	breaker  *resilience.CircuitBreaker
	series   map[string][]string
	ensured  bool
	logger   *slog.Logger
	self     *metrics.SelfMonitor
}

var _ plugin.Sink = (*Store)(nil)

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With("plugin", Name)
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(s *Store) {
		s.self = sm
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Store) {
		s.breaker = cb
	}
}

// Open connects lazily; the database may be down at startup.
func Open(settings Settings, opts ...Option) (*Store, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(settings.Driver, settings.DSN.Value())
	if err != nil {
		return nil, fmt.Errorf("open %s database %s: %w", settings.Driver, settings.DSN, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, settings, opts...), nil
}

func New(db Execer, settings Settings, opts ...Option) *Store {
	s := &Store{
		settings: settings,
		db:       db,
		series:   make(map[string][]string),
		logger:   slog.Default().With("plugin", Name),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		cfg := resilience.DefaultCircuitBreakerConfig(Name)
		cfg.Logger = s.logger
		s.breaker = resilience.NewCircuitBreaker(cfg)
	}
	return s
}

func (s *Store) Name() string { return Name }

func (s *Store) HandleFormat(f bus.Format) {
	s.series[f.Host+"-"+f.Metric] = f.Schema.Names()
}

func (s *Store) HandleData(d bus.Data) {
	if len(d.Values) == 0 {
		return
	}
	query, args := s.insert(d)
	err := s.breaker.Execute(context.Background(), func(ctx context.Context) error {
		if !s.ensured {
			if _, err := s.db.ExecContext(ctx, CreateTable(s.settings.Driver, s.settings.Table)); err != nil {
				return fmt.Errorf("create table %s: %w", s.settings.Table, err)
			}
			s.ensured = true
		}
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err == nil {
		return
	}

	s.self.RecordStorageFailure(Name)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		s.logger.Debug("Dropping sample, database unavailable", "metric", d.Metric, "host", d.Host)
		return
	}
	s.logger.Error("Insert failed", "metric", d.Metric, "host", d.Host, "error", err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// seriesName is the announced name of value i, or v<i> without a Format.
func (s *Store) seriesName(host, metric string, i int) string {
	if names := s.series[host+"-"+metric]; i < len(names) {
		return names[i]
	}
	return "v" + strconv.Itoa(i)
}

func (s *Store) insert(d bus.Data) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (host, metric, series, ts, value) VALUES ", s.settings.Table)

	args := make([]any, 0, len(d.Values)*5)
	for i, v := range d.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for col := 0; col < 5; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(s.settings.Driver, len(args)+col+1))
		}
		b.WriteByte(')')
		args = append(args, d.Host, d.Metric, s.seriesName(d.Host, d.Metric, i), d.Timestamp, v)
	}
	return b.String(), args
}

func placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// CreateTable returns the idempotent DDL for table.
func CreateTable(driver, table string) string {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	host VARCHAR(255) NOT NULL,
	metric VARCHAR(255) NOT NULL,
	series VARCHAR(64) NOT NULL,
	ts BIGINT NOT NULL,
	value BIGINT NOT NULL
)`, table)
	if driver == DriverMySQL {
		ddl += " ENGINE=InnoDB"
	}
	return ddl
}
