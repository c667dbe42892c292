package reader

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	pgerrors "github.com/powa-team/pgtop/internal/errors"
	"github.com/powa-team/pgtop/internal/model"
)

// budgetQuery computes the usable connection budget: max_connections minus the
// slots reserved for superusers.
const budgetQuery = `
	SELECT SUM(CAST(setting AS INT) * (CASE UPPER(name) WHEN 'SUPERUSER_RESERVED_CONNECTIONS' THEN -1 ELSE 1 END)) AS max_connections
	FROM pg_settings
	WHERE UPPER(name) IN ('MAX_CONNECTIONS', 'SUPERUSER_RESERVED_CONNECTIONS')
`

// hostConn is one monitored host and the single connection the registry holds to it.
type hostConn struct {
	host model.Host
	db   *sql.DB

	// broken is set once a query on the connection failed; it is never cleared.
	broken atomic.Bool
}

// connect opens the connection to address at the configured port and pings it.
func (r *Registry) connect(ctx context.Context, address string, primary bool) (*hostConn, error) {
	ref := model.HostRef{Address: address, Port: r.cfg.Database.Port}

	db, err := r.open(r.cfg.Database.DSN(address))
	if err != nil {
		return nil, pgerrors.Connection(err, fmt.Sprintf("opening connection to %s", ref.ID()))
	}

	// One handle per host; the pool never grows past it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pgerrors.Connection(err, fmt.Sprintf("connecting to %s", ref.ID()))
	}

	return &hostConn{
		host: model.Host{HostRef: ref, Primary: primary},
		db:   db,
	}, nil
}

// loadBudget reads the usable connection budget of the host.
func (h *hostConn) loadBudget(ctx context.Context) error {
	var budget sql.NullInt64
	if err := h.db.QueryRowContext(ctx, budgetQuery).Scan(&budget); err != nil {
		h.broken.Store(true)
		return pgerrors.Connection(err, fmt.Sprintf("reading connection settings of %s", h.host.ID()))
	}
	if !budget.Valid {
		return pgerrors.New(pgerrors.ErrConnection,
			fmt.Sprintf("reading connection settings of %s: max_connections not visible", h.host.ID()), "")
	}
	h.host.MaxConnections = int(budget.Int64)
	return nil
}

// healthy reports whether the connection is still usable.
func (h *hostConn) healthy(ctx context.Context) error {
	if h.broken.Load() {
		return fmt.Errorf("connection to %s is broken", h.host.ID())
	}
	if err := h.db.PingContext(ctx); err != nil {
		h.broken.Store(true)
		return fmt.Errorf("pinging %s: %w", h.host.ID(), err)
	}
	return nil
}
