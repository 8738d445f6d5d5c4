package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// pageQuery assembles a windowed list query. Fixed predicates arrive in
// where, the opts bounds apply to timeCol, and rows come back in the given
// order. Limit and offset are emitted only when set, so the zero opts value
// selects everything.
func pageQuery(base, timeCol, order string, where []string, opts domain.ListOpts) (string, []any) {
	conds := append([]string(nil), where...)
	var args []any

	if opts.Since != nil {
		args = append(args, *opts.Since)
		conds = append(conds, fmt.Sprintf("%s >= $%d", timeCol, len(args)))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		conds = append(conds, fmt.Sprintf("%s <= $%d", timeCol, len(args)))
	}

	var sb strings.Builder
	sb.WriteString(base)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}
