package schema

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marketline/marketchat/internal/db/sqlc"
)

// copyPlan describes how rows move from a legacy table into its recreated twin.
type copyPlan struct {
	columns []string
	exprs   []string
	filters []string
	orderBy string
	// keepIDs is false when legacy message ids could not be carried over.
	keepIDs bool
	// skip explains why no row can be copied.
	skip string
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// planCopy matches legacy columns to the expected shape by name and type family.
// Incompatible optional columns are dropped and fall back to their defaults.
func planCopy(shape tableShape, legacy []sqlc.ListTableColumnsRow) copyPlan {
	byName := make(map[string]sqlc.ListTableColumnsRow, len(legacy))
	for _, r := range legacy {
		byName[r.ColumnName] = r
	}
	var plan copyPlan
	for _, col := range shape.columns {
		src, ok := byName[col.name]
		compatible := ok && familyOf(src.DataType) == col.family
		if !compatible {
			if col.required {
				plan.skip = fmt.Sprintf("%s.%s is missing or incompatible", shape.name, col.name)
				return plan
			}
			continue
		}
		if shape.name == TableMessages && col.name == "id" {
			plan.keepIDs = true
		}
		ref := ident(col.name)
		expr := ref + "::" + col.sqlType
		if len(col.allowed) > 0 {
			quoted := make([]string, 0, len(col.allowed))
			for _, v := range col.allowed {
				quoted = append(quoted, quoteLiteral(v))
			}
			expr = fmt.Sprintf("CASE WHEN %s::text IN (%s) THEN %s::text ELSE %s END", ref, strings.Join(quoted, ", "), ref, col.fallback)
		} else if col.fallback != "" {
			expr = fmt.Sprintf("COALESCE(%s, %s)", expr, col.fallback)
		}
		plan.columns = append(plan.columns, ident(col.name))
		plan.exprs = append(plan.exprs, expr)
		if col.required {
			plan.filters = append(plan.filters, ref+" IS NOT NULL")
		}
		if col.references != "" {
			plan.filters = append(plan.filters, fmt.Sprintf("%s::uuid IN (SELECT id FROM %s)", ref, ident(col.references)))
		}
	}
	if shape.name == TableMessages {
		switch {
		case plan.keepIDs:
			plan.orderBy = ident("id")
		case familyOf(byName["created_at"].DataType) == familyTime:
			plan.orderBy = ident("created_at")
		}
	}
	return plan
}

// SQL renders the INSERT ... SELECT statement copying from source into target.
func (p copyPlan) SQL(target, source string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s",
		ident(target), strings.Join(p.columns, ", "), strings.Join(p.exprs, ", "), ident(source))
	if len(p.filters) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(p.filters, " AND "))
	}
	if p.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(p.orderBy)
	}
	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String()
}
