// Package schema verifies that the chat tables have the shape the services rely on
// and, when allowed, heals them before any chat operation runs.
package schema

import (
	"fmt"
	"strings"

	"github.com/marketline/marketchat/internal/db/sqlc"
)

// Table names owned by the chat schema.
const (
	TableConversations = "chat_conversations"
	TableParticipants  = "chat_participants"
	TableMessages      = "chat_messages"
)

type family int

const (
	familyOther family = iota
	familyUUID
	familyText
	familyInt
	familyTime
)

func familyOf(dataType string) family {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "uuid":
		return familyUUID
	case "text", "character varying", "character", "varchar":
		return familyText
	case "smallint", "integer", "bigint":
		return familyInt
	case "timestamp with time zone", "timestamp without time zone":
		return familyTime
	default:
		return familyOther
	}
}

type column struct {
	name    string
	family  family
	sqlType string
	// required columns are NOT NULL without a default; rows lacking them are not copied.
	required bool
	// fallback replaces NULL or out-of-set values when copying.
	fallback string
	// allowed is the closed value set enforced by a check constraint.
	allowed []string
	// references names the table whose id the value must exist in.
	references string
}

type tableShape struct {
	name    string
	columns []column
}

// shapes lists tables in dependency order.
var shapes = []tableShape{
	{
		name: TableConversations,
		columns: []column{
			{name: "id", family: familyUUID, sqlType: "uuid", required: true},
			{name: "kind", family: familyText, sqlType: "text", fallback: "'support'", allowed: []string{"support", "direct"}},
			{name: "pair_key", family: familyText, sqlType: "text"},
			{name: "created_at", family: familyTime, sqlType: "timestamptz", fallback: "now()"},
			{name: "updated_at", family: familyTime, sqlType: "timestamptz", fallback: "now()"},
			{name: "last_message_id", family: familyInt, sqlType: "bigint"},
			{name: "last_message_at", family: familyTime, sqlType: "timestamptz"},
			{name: "last_message_preview", family: familyText, sqlType: "text"},
		},
	},
	{
		name: TableParticipants,
		columns: []column{
			{name: "conversation_id", family: familyUUID, sqlType: "uuid", required: true, references: TableConversations},
			{name: "user_id", family: familyUUID, sqlType: "uuid", required: true, references: "users"},
			{name: "role", family: familyText, sqlType: "text", fallback: "'user'", allowed: []string{"user", "admin"}},
			{name: "last_read_message_id", family: familyInt, sqlType: "bigint", fallback: "0"},
			{name: "unread_count", family: familyInt, sqlType: "integer", fallback: "0"},
			{name: "created_at", family: familyTime, sqlType: "timestamptz", fallback: "now()"},
		},
	},
	{
		name: TableMessages,
		columns: []column{
			{name: "id", family: familyInt, sqlType: "bigint"},
			{name: "conversation_id", family: familyUUID, sqlType: "uuid", required: true, references: TableConversations},
			{name: "sender_id", family: familyUUID, sqlType: "uuid", required: true},
			{name: "kind", family: familyText, sqlType: "text", fallback: "'text'", allowed: []string{"text", "image", "file"}},
			{name: "body", family: familyText, sqlType: "text"},
			{name: "media_key", family: familyText, sqlType: "text"},
			{name: "client_token", family: familyText, sqlType: "text"},
			{name: "created_at", family: familyTime, sqlType: "timestamptz", fallback: "now()"},
		},
	},
}

// TableNames returns the chat tables in dependency order.
func TableNames() []string {
	names := make([]string, 0, len(shapes))
	for _, s := range shapes {
		names = append(names, s.name)
	}
	return names
}

func shapeOf(table string) (tableShape, bool) {
	for _, s := range shapes {
		if s.name == table {
			return s, true
		}
	}
	return tableShape{}, false
}

// checkTable returns human readable problems for one table. No rows means the
// table does not exist.
func checkTable(shape tableShape, rows []sqlc.ListTableColumnsRow) []string {
	if len(rows) == 0 {
		return []string{fmt.Sprintf("table %s is missing", shape.name)}
	}
	byName := make(map[string]sqlc.ListTableColumnsRow, len(rows))
	for _, r := range rows {
		byName[r.ColumnName] = r
	}
	var problems []string
	for _, col := range shape.columns {
		got, ok := byName[col.name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s.%s is missing", shape.name, col.name))
			continue
		}
		if familyOf(got.DataType) != col.family {
			problems = append(problems, fmt.Sprintf("%s.%s has type %s, want %s", shape.name, col.name, got.DataType, col.sqlType))
			continue
		}
		if shape.name == TableMessages && col.name == "id" && !autoIncrementing(got) {
			problems = append(problems, fmt.Sprintf("%s.id is not auto-incrementing", shape.name))
		}
	}
	return problems
}

func autoIncrementing(col sqlc.ListTableColumnsRow) bool {
	return col.IsIdentity || (col.ColumnDefault.Valid && strings.HasPrefix(col.ColumnDefault.String, "nextval("))
}
