package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/lot-watch/internal/config"
)

// BuildConnString renders cfg as a postgres:// URL usable by both pgx and
// golang-migrate. Credentials are escaped; sslmode falls back to prefer.
func BuildConnString(cfg config.DBConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	if cfg.SSLMode == "" {
		q.Set("sslmode", config.DefaultDBSSLMode)
	}
	if cfg.AppName != "" {
		q.Set("application_name", cfg.AppName)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}
