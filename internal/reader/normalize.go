package reader

import (
	"regexp"

	"github.com/powa-team/pgtop/internal/model"
)

// requestComment matches the comment the application layer prefixes to every
// statement it submits, e.g. "/*[12] REQUEST: orders.list*/ ".
var requestComment = regexp.MustCompile(`^/\*\[[0-9]+\] REQUEST: [^/*]+\*/ `)

// rowScanner is the subset of *sql.Rows needed to scan one row.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRow reads one sessions view row. Nullable columns stay null; a NULL in
// a required numeric column is a scan error.
func scanRow(rows rowScanner) (model.SnapshotRow, error) {
	var row model.SnapshotRow
	err := rows.Scan(
		&row.PID,
		&row.State,
		&row.UTime,
		&row.STime,
		&row.RChar,
		&row.WChar,
		&row.UserName,
		&row.DatabaseName,
		&row.ApplicationName,
		&row.ProcessAge,
		&row.StatementAge,
		&row.BlockingPID,
		&row.LockRelation,
		&row.Query,
		&row.Epoch,
	)
	if err != nil {
		return model.SnapshotRow{}, err
	}
	normalizeRow(&row)
	return row, nil
}

// normalizeRow applies the transformations that do not depend on the driver.
func normalizeRow(row *model.SnapshotRow) {
	if row.Query.Valid {
		row.Query.String = StripRequestComment(row.Query.String)
	}
}

// StripRequestComment removes a leading request comment, leaving the user authored statement.
func StripRequestComment(sql string) string {
	return requestComment.ReplaceAllLiteralString(sql, "")
}
