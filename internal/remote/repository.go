// Package remote implements the store's remote collaborators on PostgreSQL.
// Every query is scoped to a single owner.
package remote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mtlprog/folio/internal/store"
)

// Channels the change-notification triggers publish on.
const (
	HoldingsChannel = "folio_holdings"
	TargetsChannel  = "folio_targets"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// assignments accumulates the SET clause of a partial update.
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) set(col string, v any) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, fmt.Sprintf("%s = $%d", col, len(a.args)))
}

func (a *assignments) setCast(col string, v any, cast string) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, fmt.Sprintf("%s = $%d::%s", col, len(a.args), cast))
}

// update renders an UPDATE of table for id and owner. updated_at is always bumped.
func (a *assignments) update(table, returning, id, owner string) (string, []any) {
	cols := append(append([]string(nil), a.cols...), "updated_at = NOW()")
	args := append(append([]any(nil), a.args...), id, owner)
	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND owner_id = $%d RETURNING %s`,
		table, strings.Join(cols, ", "), len(args)-1, len(args), returning)
	return sql, args
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	return nil
}
