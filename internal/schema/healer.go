package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/db/sqlc"
	"github.com/marketline/marketchat/internal/message"
)

// maxIdentLen is the Postgres identifier length limit.
const maxIdentLen = 63

const listTableIndexes = `SELECT indexname FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1`

const listLastMessages = `
SELECT DISTINCT ON (conversation_id) conversation_id, id, kind, body, created_at
FROM chat_messages
ORDER BY conversation_id, id DESC`

// Copied pointers may name messages that were not carried over or were renumbered.
const clearLastMessages = `
UPDATE chat_conversations
SET last_message_id = NULL, last_message_at = NULL, last_message_preview = NULL`

const resetWatermarks = `
UPDATE chat_participants p
SET last_read_message_id = COALESCE(c.last_message_id, 0), unread_count = 0
FROM chat_conversations c
WHERE c.id = p.conversation_id`

const reseedMessageIDs = `
SELECT setval(pg_get_serial_sequence('chat_messages', 'id'), GREATEST(COALESCE(MAX(id), 0), 1), MAX(id) IS NOT NULL)
FROM chat_messages`

// Healer rebuilds chat tables whose shape cannot be fixed by migrations. Existing
// tables are kept aside under a legacy name; compatible rows are copied back.
type Healer struct {
	pool   *pgxpool.Pool
	limits message.Limits
	now    func() time.Time
	logger *slog.Logger
}

func NewHealer(log *slog.Logger, pool *pgxpool.Pool, limits message.Limits) *Healer {
	if log == nil {
		log = slog.Default()
	}
	return &Healer{
		pool:   pool,
		limits: limits,
		now:    time.Now,
		logger: log.With(slog.String("service", "schema_healer")),
	}
}

// Heal runs the rebuild in a single transaction.
func (h *Healer) Heal(ctx context.Context) error {
	suffix := fmt.Sprintf("_legacy_%d", h.now().Unix())
	return pgx.BeginFunc(ctx, h.pool, func(tx pgx.Tx) error {
		q := sqlc.New(tx)
		rows, err := q.ListTableColumns(ctx, TableNames())
		if err != nil {
			return fmt.Errorf("inspect legacy tables: %w", err)
		}
		legacy := make(map[string][]sqlc.ListTableColumnsRow)
		for _, r := range rows {
			legacy[r.TableName] = append(legacy[r.TableName], r)
		}

		for _, shape := range shapes {
			if _, ok := legacy[shape.name]; !ok {
				continue
			}
			if err := renameAside(ctx, tx, shape.name, suffix); err != nil {
				return err
			}
		}

		ddl, err := db.BaselineSQL()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("recreate chat tables: %w", err)
		}

		renumbered := false
		copiedMessages := false
		for _, shape := range shapes {
			cols, ok := legacy[shape.name]
			if !ok {
				continue
			}
			plan := planCopy(shape, cols)
			if plan.skip != "" {
				h.logger.Warn("legacy rows not copied", slog.String("table", shape.name), slog.String("reason", plan.skip))
				continue
			}
			tag, err := tx.Exec(ctx, plan.SQL(shape.name, legacyName(shape.name, suffix)))
			if err != nil {
				return fmt.Errorf("copy %s: %w", shape.name, err)
			}
			h.logger.Info("legacy rows copied", slog.String("table", shape.name), slog.Int64("rows", tag.RowsAffected()))
			if shape.name == TableMessages {
				copiedMessages = true
				renumbered = !plan.keepIDs
			}
		}
		if copiedMessages {
			if _, err := tx.Exec(ctx, reseedMessageIDs); err != nil {
				return fmt.Errorf("reseed message ids: %w", err)
			}
		}

		if err := h.rebuildLastMessages(ctx, tx); err != nil {
			return err
		}
		if renumbered {
			if _, err := tx.Exec(ctx, resetWatermarks); err != nil {
				return fmt.Errorf("reset read watermarks: %w", err)
			}
		} else if _, err := q.RecomputeUnreadCounts(ctx, pgtype.UUID{}); err != nil {
			return fmt.Errorf("recompute unread: %w", err)
		}
		h.logger.Info("chat schema healed", slog.String("legacy_suffix", suffix), slog.Bool("renumbered", renumbered))
		return nil
	})
}

// rebuildLastMessages points every conversation at its newest surviving message.
// Conversations without messages end up with no pointer at all.
func (h *Healer) rebuildLastMessages(ctx context.Context, conn sqlc.DBTX) error {
	if _, err := conn.Exec(ctx, clearLastMessages); err != nil {
		return fmt.Errorf("clear last messages: %w", err)
	}
	rows, err := conn.Query(ctx, listLastMessages)
	if err != nil {
		return fmt.Errorf("list last messages: %w", err)
	}
	type last struct {
		conversationID pgtype.UUID
		id             int64
		kind           string
		body           pgtype.Text
		createdAt      pgtype.Timestamptz
	}
	var items []last
	for rows.Next() {
		var l last
		if err := rows.Scan(&l.conversationID, &l.id, &l.kind, &l.body, &l.createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan last message: %w", err)
		}
		items = append(items, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list last messages: %w", err)
	}
	q := sqlc.New(conn)
	for _, l := range items {
		if _, err := q.UpdateConversationLastMessage(ctx, sqlc.UpdateConversationLastMessageParams{
			MessageID: l.id,
			MessageAt: l.createdAt,
			Preview:   db.Text(message.Preview(l.kind, db.TextToString(l.body), h.limits)),
			ID:        l.conversationID,
		}); err != nil {
			return fmt.Errorf("update last message: %w", err)
		}
	}
	return nil
}

func legacyName(name, suffix string) string {
	if len(name)+len(suffix) > maxIdentLen {
		name = name[:maxIdentLen-len(suffix)]
	}
	return name + suffix
}

// renameAside moves a table and its indexes out of the way so the baseline can
// recreate them under their canonical names.
func renameAside(ctx context.Context, tx pgx.Tx, table, suffix string) error {
	rows, err := tx.Query(ctx, listTableIndexes, table)
	if err != nil {
		return fmt.Errorf("list indexes of %s: %w", table, err)
	}
	indexes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("list indexes of %s: %w", table, err)
	}
	for _, idx := range indexes {
		stmt := fmt.Sprintf("ALTER INDEX %s RENAME TO %s", ident(idx), ident(legacyName(idx, suffix)))
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("rename index %s: %w", idx, err)
		}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ident(table), ident(legacyName(table, suffix)))
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("rename %s: %w", table, err)
	}
	return nil
}
