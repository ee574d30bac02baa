package middleware

import (
	"fmt"
	"net/netip"

	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb     *database.Redis
	log     *logger.Logger
	cfg     *config.Config
	proxies []netip.Prefix
}

// New creates a new Middleware instance
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config) (*Middleware, error) {
	proxies, err := ParseTrustedProxies(cfg.Security.RateLimiting.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxy: %w", err)
	}
	return &Middleware{
		rdb:     rdb,
		log:     log.WithComponent("http"),
		cfg:     cfg,
		proxies: proxies,
	}, nil
}
