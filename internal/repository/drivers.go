package repository

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-finance/verdict/internal/domain"
)

// driver maps a configured driver name to its database/sql name and DSN.
type driver struct {
	sqlName string
	dsn     func(cfg domain.RepositoryConfig) (string, error)
}

var drivers = map[string]driver{
	"sqlite":   {sqlName: "sqlite", dsn: sqliteDSN},
	"postgres": {sqlName: "postgres", dsn: postgresDSN},
}

// open resolves the driver, opens the pool and pings it once.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	d, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// sqliteDSN uses the pure Go modernc driver. Audit appends and approval
// decisions can race, so WAL and a busy timeout are always set.
func sqliteDSN(cfg domain.RepositoryConfig) (string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./verdict.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}

	pragmas := url.Values{}
	for _, p := range []string{"journal_mode(WAL)", "synchronous(NORMAL)", "busy_timeout(5000)"} {
		pragmas.Add("_pragma", p)
	}
	return "file:" + path + "?" + pragmas.Encode(), nil
}

func postgresDSN(cfg domain.RepositoryConfig) (string, error) {
	if cfg.PostgresUser == "" {
		return "", fmt.Errorf("%w: postgres user is required", ErrInvalidInput)
	}

	host := valueOr(cfg.PostgresHost, "localhost")
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + valueOr(cfg.PostgresDB, "verdict"),
		RawQuery: url.Values{"sslmode": {valueOr(cfg.PostgresSSLMode, "disable")}}.Encode(),
	}
	return u.String(), nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
