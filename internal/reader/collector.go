package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	pgerrors "github.com/powa-team/pgtop/internal/errors"
	"github.com/powa-team/pgtop/internal/model"
)

// sessionsColumns is the column list read from the sessions view, in scan order.
const sessionsColumns = `
		session_pid,
		process_state,
		process_utime,
		process_stime,
		process_rchar,
		process_wchar,
		user_name,
		database_name,
		app_name,
		process_age,
		statement_age,
		blocking_lock_pid,
		lock_relation,
		query_sql,
		EXTRACT(epoch FROM clock_timestamp())::float8 AS epoch`

// sessionsQuery builds the per-cycle query against view.
func sessionsQuery(view string) string {
	return fmt.Sprintf("SELECT %s\n\tFROM %s", sessionsColumns, quoteRelation(view))
}

// quoteRelation quotes every part of a possibly schema qualified relation name.
func quoteRelation(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Collect queries every host once, concurrently, and returns one snapshot per
// host in registry order. The cycle fails as a whole if any host fails; the
// failing host is marked broken so the next health check fails too.
func (r *Registry) Collect(ctx context.Context) ([]model.HostSnapshot, error) {
	snapshots := make([]model.HostSnapshot, len(r.hosts))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range r.hosts {
		i, h := i, h
		g.Go(func() error {
			rows, err := r.collectHost(gctx, h)
			if err != nil {
				h.broken.Store(true)
				return err
			}
			snapshots[i] = model.HostSnapshot{Host: h.host.HostRef, Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *Registry) collectHost(ctx context.Context, h *hostConn) ([]model.SnapshotRow, error) {
	rows, err := h.db.QueryContext(ctx, r.query)
	if err != nil {
		return nil, r.queryError(err, h)
	}
	defer rows.Close()

	var result []model.SnapshotRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, pgerrors.Query(err, fmt.Sprintf("reading session row from %s", h.host.ID()))
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, r.queryError(err, h)
	}
	return result, nil
}

// queryError wraps a failed sessions query, adding a hint for the failures an
// operator can fix.
func (r *Registry) queryError(err error, h *hostConn) error {
	message := fmt.Sprintf("polling sessions on %s", h.host.ID())
	view := r.cfg.Monitor.SessionsView
	switch {
	case isViewNotExistError(err):
		return pgerrors.WrapWithCode(err, pgerrors.ErrQuery, message,
			fmt.Sprintf("create the %s view or set monitor.sessions_view", view))
	case isPermissionError(err):
		return pgerrors.WrapWithCode(err, pgerrors.ErrQuery, message,
			fmt.Sprintf("grant SELECT on %s to %s", view, r.cfg.Database.User))
	}
	return pgerrors.Query(err, message)
}

func isViewNotExistError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42P01 = undefined_table
		return pqErr.Code == "42P01"
	}
	return false
}

func isPermissionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42501 = insufficient_privilege
		return pqErr.Code == "42501"
	}
	return false
}
