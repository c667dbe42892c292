// Package screen lays out the ranked session table for a fixed size terminal.
package screen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/muesli/termenv"

	"github.com/powa-team/pgtop/internal/model"
)

// Header is the column header line of the table.
const Header = " host            | port  | PID          | user       | database     | application                                          | CPU (U/S)   | I/O (R/W,Kbs) | proc_age   | stmt_age | blocker  | blocked_rel  | SQL"

// rowFormat lays out every column before the SQL text.
const rowFormat = " %-15s | %5d | %12s | %-11s| %-13s| %-52s | %5.1f/%5.1f | %6d/%6d | %10d | %8d | %8s | %-13s| "

// Column limits.
const (
	userWidth     = 10
	databaseWidth = 12
	appWidth      = 52
	relationWidth = 12
)

// headerLines is the number of screen lines used by the header and its rule.
const headerLines = 2

// Options configures a Renderer.
type Options struct {
	// Width and Height are the terminal size, read once at startup.
	Width  int
	Height int

	// MaxSQLLines caps the number of lines a row's SQL may be folded into.
	MaxSQLLines int

	// Profile selects the escape sequences; termenv.Ascii disables styling.
	Profile termenv.Profile
}

// Renderer turns a ranked record set into a full screen frame.
type Renderer struct {
	width       int
	height      int
	maxSQLLines int
	profile     termenv.Profile
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	return &Renderer{
		width:       opts.Width,
		height:      opts.Height,
		maxSQLLines: opts.MaxSQLLines,
		profile:     opts.Profile,
	}
}

// Render returns the frame for one cycle: a cleared screen, the header (in
// standout when alerts fired this cycle) and as many records as fit.
func (r *Renderer) Render(records []*model.ProcessRecord, alerts bool) string {
	var b strings.Builder
	r.clear(&b)

	header := fit(Header, r.width)
	if alerts {
		header = r.profile.String().Foreground(termenv.ANSIColor(model.ColorRed)).Reverse().Styled(header)
	}
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", r.width))

	rows := max(r.height-headerLines, 0)
	for i, rec := range records {
		if i >= rows {
			break
		}
		b.WriteString("\n")
		b.WriteString(r.style(rec.Highlight).Styled(r.formatRow(rec)))
		if r.maxSQLLines > 1 {
			b.WriteString("\n")
			b.WriteString(strings.Repeat("-", r.width))
		}
	}

	return b.String()
}

// Message returns a cleared screen showing a single status line.
func (r *Renderer) Message(text string) string {
	var b strings.Builder
	r.clear(&b)
	b.WriteString(truncate(strings.Join(strings.Fields(text), " "), r.width))
	b.WriteString("\n")
	return b.String()
}

func (r *Renderer) clear(b *strings.Builder) {
	termenv.NewOutput(b, termenv.WithProfile(r.profile)).ClearScreen()
}

// style maps a highlight to a termenv style.
func (r *Renderer) style(h model.Highlight) termenv.Style {
	s := r.profile.String().Foreground(termenv.ANSIColor(h.Color()))
	if h.Has(model.ModeBold) {
		s = s.Bold()
	}
	if h.Has(model.ModeDim) {
		s = s.Faint()
	}
	if h.Has(model.ModeUnderline) {
		s = s.Underline()
	}
	if h.Has(model.ModeReverse) || h.Has(model.ModeStandout) {
		s = s.Reverse()
	}
	return s
}

// formatRow lays out one record, folding its SQL over at most maxSQLLines
// lines. Every line is padded to the screen width.
func (r *Renderer) formatRow(rec *model.ProcessRecord) string {
	row := &rec.Current

	state := " "
	if row.State.Valid {
		state = row.State.String
	}
	blocker := ""
	if row.BlockingPID.Valid {
		blocker = strconv.FormatInt(row.BlockingPID.Int64, 10)
	}

	pre := fmt.Sprintf(rowFormat,
		rec.Host.Address,
		rec.Host.Port,
		fmt.Sprintf("%d(%s)", row.PID, state),
		cut(row.UserName.String, userWidth),
		cut(row.DatabaseName.String, databaseWidth),
		cutInside(row.ApplicationName.String, appWidth),
		100*rec.Stats.CPUUser, 100*rec.Stats.CPUSystem,
		kilobytes(rec.Stats.IORead), kilobytes(rec.Stats.IOWrite),
		row.ProcessAge,
		row.StatementAge.Int64,
		blocker,
		cut(row.LockRelation.String, relationWidth),
	)
	preWidth := utf8.RuneCountInString(pre)

	var b strings.Builder
	b.WriteString(pre)

	sql := []rune(strings.Join(strings.Fields(row.Query.String), " "))
	if r.maxSQLLines == 0 || len(sql) == 0 {
		b.WriteString(spaces(r.width - preWidth))
		return b.String()
	}
	if preWidth >= r.width {
		return b.String()
	}

	foldWidth := r.width - preWidth
	chunks := (len(sql) + foldWidth - 1) / foldWidth
	for i := 0; i < chunks && i < r.maxSQLLines; i++ {
		if i > 0 {
			b.WriteString("\n")
			b.WriteString(spaces(preWidth - 2))
			b.WriteString("| ")
		}
		chunk := sql[i*foldWidth : min((i+1)*foldWidth, len(sql))]
		b.WriteString(string(chunk))
		b.WriteString(spaces(foldWidth - len(chunk)))
	}
	return b.String()
}

// cut truncates s to n runes and appends ">" if it was truncated, " " otherwise.
func cut(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n]) + ">"
	}
	return s + " "
}

// cutInside truncates s to n runes, the last one being ">" when s was longer.
func cutInside(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n-1]) + ">"
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n])
	}
	return s
}

// fit pads or truncates s to exactly n runes.
func fit(s string, n int) string {
	s = truncate(s, n)
	return s + spaces(n-utf8.RuneCountInString(s))
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

// kilobytes converts a byte rate to KB/s, rounding up.
func kilobytes(rate float64) int64 {
	return int64(math.Ceil(rate / 1024))
}
