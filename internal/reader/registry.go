// Package reader provides database access for the monitored PostgreSQL hosts:
// building the host set, checking its health and collecting session snapshots.
package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/powa-team/pgtop/internal/config"
	pgerrors "github.com/powa-team/pgtop/internal/errors"
	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
)

// replicasQuery lists the replicas currently streaming from the primary.
const replicasQuery = `
	SELECT rep.client_addr, rep.client_port
	FROM pg_stat_replication AS rep
	WHERE rep.state = 'streaming'
`

// OpenFunc opens a database handle for a connection string.
type OpenFunc func(dsn string) (*sql.DB, error)

// ResolveFunc maps a host name to the address to connect to.
type ResolveFunc func(ctx context.Context, host string) (string, error)

// Options carries the collaborators of a Registry. Zero values select the defaults.
type Options struct {
	Open    OpenFunc
	Resolve ResolveFunc
	Logger  logger.Logger
}

// Registry holds the monitored hosts (the primary and its streaming replicas)
// and exclusively owns one connection per host.
type Registry struct {
	cfg     *config.Config
	open    OpenFunc
	resolve ResolveFunc
	log     logger.Logger

	hosts  []*hostConn
	byID   map[string]*hostConn
	query  string
	closed bool
}

func openPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func lookupHost(ctx context.Context, host string) (string, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no address found for %s", host)
	}
	return addrs[0], nil
}

// Discover connects to the primary, discovers its streaming replicas if enabled,
// and reads the connection budget of every host. Any failure closes every
// connection opened so far; a partial host set is never returned.
func Discover(ctx context.Context, cfg *config.Config, opts Options) (*Registry, error) {
	r := &Registry{
		cfg:     cfg,
		open:    opts.Open,
		resolve: opts.Resolve,
		log:     opts.Logger,
		byID:    make(map[string]*hostConn),
		query:   sessionsQuery(cfg.Monitor.SessionsView),
	}
	if r.open == nil {
		r.open = openPostgres
	}
	if r.resolve == nil {
		r.resolve = lookupHost
	}
	if r.log == nil {
		r.log = logger.Noop()
	}

	if err := r.build(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) build(ctx context.Context) error {
	address := r.cfg.Database.Host
	if r.cfg.Discovery.ResolveHosts && !r.cfg.Database.IsSocket() {
		resolved, err := r.resolve(ctx, address)
		if err != nil {
			return pgerrors.Connection(err, fmt.Sprintf("resolving %s", address))
		}
		address = resolved
	}

	primary, err := r.connect(ctx, address, true)
	if err != nil {
		return err
	}
	r.add(primary)

	if r.cfg.Discovery.Replicas {
		replicas, err := r.discoverReplicas(ctx, primary)
		if err != nil {
			return err
		}
		for _, addr := range replicas {
			ref := model.HostRef{Address: addr, Port: r.cfg.Database.Port}
			if _, dup := r.byID[ref.ID()]; dup {
				continue
			}
			h, err := r.connect(ctx, addr, false)
			if err != nil {
				return err
			}
			r.add(h)
		}
	}

	for _, h := range r.hosts {
		if err := h.loadBudget(ctx); err != nil {
			return err
		}
		role := "replica"
		if h.host.Primary {
			role = "primary"
		}
		r.log.Info("connected to %s %s as %s (max_connections=%d)",
			role, h.host.ID(), r.cfg.Database.User, h.host.MaxConnections)
	}
	return nil
}

func (r *Registry) add(h *hostConn) {
	r.hosts = append(r.hosts, h)
	r.byID[h.host.ID()] = h
}

// discoverReplicas returns the addresses of the replicas streaming from primary.
func (r *Registry) discoverReplicas(ctx context.Context, primary *hostConn) ([]string, error) {
	rows, err := primary.db.QueryContext(ctx, replicasQuery)
	if err != nil {
		primary.broken.Store(true)
		return nil, pgerrors.Connection(err, fmt.Sprintf("listing replicas of %s", primary.host.ID()))
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr sql.NullString
		var port sql.NullInt64
		if err := rows.Scan(&addr, &port); err != nil {
			return nil, pgerrors.Connection(err, "scanning replica row")
		}
		if !addr.Valid {
			// replica connected through a unix socket; nothing to dial
			r.log.Warn("skipping streaming replica without client address (port %d)", port.Int64)
			continue
		}
		addrs = append(addrs, addr.String)
	}
	if err := rows.Err(); err != nil {
		return nil, pgerrors.Connection(err, "iterating replica rows")
	}
	return addrs, nil
}

// Hosts returns the monitored hosts, primary first.
func (r *Registry) Hosts() []model.Host {
	hosts := make([]model.Host, len(r.hosts))
	for i, h := range r.hosts {
		hosts[i] = h.host
	}
	return hosts
}

// AllHealthy reports whether every connection is still usable. A connection
// that failed once stays unhealthy; the registry must be rebuilt.
func (r *Registry) AllHealthy(ctx context.Context) bool {
	if r.closed || len(r.hosts) == 0 {
		return false
	}
	for _, h := range r.hosts {
		if err := h.healthy(ctx); err != nil {
			r.log.Warn("health check failed: %v", err)
			return false
		}
	}
	return true
}

// Close closes every connection. It is safe to call more than once.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, h := range r.hosts {
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", h.host.ID(), err))
		}
	}
	return errors.Join(errs...)
}
