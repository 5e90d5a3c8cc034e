package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/db/sqlc"
)

const (
	clientTokenConstraint = "chat_messages_client_token"
	maxClientTokenLen     = 128
)

// Store is the subset of queries the message store needs, plus transactions.
type Store interface {
	InTx(ctx context.Context, fn func(q sqlc.Querier) error) error
	GetConversation(ctx context.Context, id pgtype.UUID) (sqlc.ChatConversation, error)
	GetMessageByClientToken(ctx context.Context, arg sqlc.GetMessageByClientTokenParams) (sqlc.ChatMessage, error)
	ListMessagesBefore(ctx context.Context, arg sqlc.ListMessagesBeforeParams) ([]sqlc.ChatMessage, error)
	ListMessagesSince(ctx context.Context, arg sqlc.ListMessagesSinceParams) ([]sqlc.ChatMessage, error)
	MarkParticipantRead(ctx context.Context, arg sqlc.MarkParticipantReadParams) (int64, error)
	MarkAllParticipantsRead(ctx context.Context, userID pgtype.UUID) (int64, error)
	SumUnreadForUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	RecomputeUnreadCounts(ctx context.Context, conversationID pgtype.UUID) ([]sqlc.RecomputeUnreadCountsRow, error)
}

// DBService persists and reads chat messages.
type DBService struct {
	store  Store
	limits Limits
	logger *slog.Logger
}

var _ Service = (*DBService)(nil)

// NewService creates a message service.
func NewService(log *slog.Logger, store Store, limits Limits) *DBService {
	if log == nil {
		log = slog.Default()
	}
	defaults := DefaultLimits()
	if limits.PageDefault <= 0 {
		limits.PageDefault = defaults.PageDefault
	}
	if limits.PageMax <= 0 {
		limits.PageMax = defaults.PageMax
	}
	if limits.PageDefault > limits.PageMax {
		limits.PageDefault = limits.PageMax
	}
	if limits.MaxTextRunes <= 0 {
		limits.MaxTextRunes = defaults.MaxTextRunes
	}
	if limits.PreviewRunes <= 0 {
		limits.PreviewRunes = defaults.PreviewRunes
	}
	if limits.ImageLabel == "" {
		limits.ImageLabel = defaults.ImageLabel
	}
	if limits.FileLabel == "" {
		limits.FileLabel = defaults.FileLabel
	}
	return &DBService{
		store:  store,
		limits: limits,
		logger: log.With(slog.String("service", "message")),
	}
}

func (s *DBService) Limits() Limits {
	return s.limits
}

func (s *DBService) validate(input *AppendInput) error {
	input.Kind = strings.TrimSpace(input.Kind)
	if input.Kind == "" {
		input.Kind = KindText
	}
	input.ClientToken = strings.TrimSpace(input.ClientToken)
	input.MediaKey = strings.TrimSpace(input.MediaKey)
	switch input.Kind {
	case KindText:
		if strings.TrimSpace(input.Text) == "" {
			return fmt.Errorf("%w: text is required", ErrInvalidInput)
		}
		if input.MediaKey != "" {
			return fmt.Errorf("%w: text messages cannot carry media", ErrInvalidInput)
		}
	case KindImage, KindFile:
		if input.MediaKey == "" {
			return fmt.Errorf("%w: %s messages require media", ErrInvalidInput, input.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, input.Kind)
	}
	if n := utf8.RuneCountInString(input.Text); n > s.limits.MaxTextRunes {
		return fmt.Errorf("%w: text is %d characters, limit is %d", ErrInvalidInput, n, s.limits.MaxTextRunes)
	}
	if len(input.ClientToken) > maxClientTokenLen {
		return fmt.Errorf("%w: client token too long", ErrInvalidInput)
	}
	return nil
}

// Append stores a message. A repeated client token resolves to the original message.
func (s *DBService) Append(ctx context.Context, input AppendInput) (AppendResult, error) {
	if err := s.validate(&input); err != nil {
		return AppendResult{}, err
	}
	convID, err := dbpkg.ParseUUID(input.ConversationID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: invalid conversation id", ErrInvalidInput)
	}
	senderID, err := dbpkg.ParseUUID(input.SenderID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: invalid sender id", ErrInvalidInput)
	}
	token := dbpkg.Text(input.ClientToken)

	if token.Valid {
		if replay, ok, err := s.replay(ctx, convID, token, senderID); err != nil || ok {
			return replay, err
		}
	}

	var created sqlc.ChatMessage
	err = s.store.InTx(ctx, func(q sqlc.Querier) error {
		row, err := q.CreateMessage(ctx, sqlc.CreateMessageParams{
			ConversationID: convID,
			SenderID:       senderID,
			Kind:           input.Kind,
			Body:           dbpkg.Text(input.Text),
			MediaKey:       dbpkg.Text(input.MediaKey),
			ClientToken:    token,
		})
		if err != nil {
			return err
		}
		preview := Preview(row.Kind, input.Text, s.limits)
		if _, err := q.UpdateConversationLastMessage(ctx, sqlc.UpdateConversationLastMessageParams{
			MessageID: row.ID,
			MessageAt: row.CreatedAt,
			Preview:   dbpkg.Text(preview),
			ID:        convID,
		}); err != nil {
			return fmt.Errorf("update last message: %w", err)
		}
		if _, err := q.IncrementUnreadForOthers(ctx, sqlc.IncrementUnreadForOthersParams{
			ConversationID: convID,
			UserID:         senderID,
		}); err != nil {
			return fmt.Errorf("increment unread: %w", err)
		}
		if _, err := q.MarkParticipantRead(ctx, sqlc.MarkParticipantReadParams{
			MessageID:      row.ID,
			ConversationID: convID,
			UserID:         senderID,
		}); err != nil {
			return fmt.Errorf("advance sender watermark: %w", err)
		}
		created = row
		return nil
	})
	if err != nil {
		if token.Valid && dbpkg.IsUniqueViolation(err, clientTokenConstraint) {
			// Lost the race against a request carrying the same token.
			replay, ok, rerr := s.replay(ctx, convID, token, senderID)
			if rerr != nil {
				return AppendResult{}, rerr
			}
			if ok {
				return replay, nil
			}
			return AppendResult{}, ErrConflict
		}
		return AppendResult{}, fmt.Errorf("append message: %w", err)
	}
	msg := toMessage(created)
	s.logger.Debug("message appended", slog.Int64("message_id", msg.ID), slog.String("conversation_id", msg.ConversationID), slog.String("kind", msg.Kind))
	return AppendResult{Message: msg}, nil
}

func (s *DBService) replay(ctx context.Context, convID pgtype.UUID, token pgtype.Text, senderID pgtype.UUID) (AppendResult, bool, error) {
	row, err := s.store.GetMessageByClientToken(ctx, sqlc.GetMessageByClientTokenParams{
		ConversationID: convID,
		ClientToken:    token,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AppendResult{}, false, nil
		}
		return AppendResult{}, false, fmt.Errorf("get message by client token: %w", err)
	}
	if row.SenderID != senderID {
		return AppendResult{}, false, ErrConflict
	}
	return AppendResult{Message: toMessage(row), Replayed: true}, true, nil
}

func (s *DBService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.limits.PageDefault
	}
	if limit > s.limits.PageMax {
		return s.limits.PageMax
	}
	return limit
}

// List returns a page in ascending id order. Before pages walk backwards from a cursor;
// Since pages walk forwards. Without a cursor the newest page is returned.
func (s *DBService) List(ctx context.Context, conversationID string, query ListQuery) (Page, error) {
	if query.Before < 0 || query.Since < 0 {
		return Page{}, fmt.Errorf("%w: cursor must be positive", ErrInvalidInput)
	}
	if query.Before > 0 && query.Since > 0 {
		return Page{}, fmt.Errorf("%w: before and since are mutually exclusive", ErrInvalidInput)
	}
	convID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Page{}, fmt.Errorf("%w: invalid conversation id", ErrInvalidInput)
	}
	limit := s.clampLimit(query.Limit)

	if query.Since > 0 {
		rows, err := s.store.ListMessagesSince(ctx, sqlc.ListMessagesSinceParams{
			ConversationID: convID,
			SinceID:        query.Since,
			MaxCount:       int32(limit + 1),
		})
		if err != nil {
			return Page{}, fmt.Errorf("list messages since: %w", err)
		}
		hasMore := len(rows) > limit
		if hasMore {
			rows = rows[:limit]
		}
		return Page{Items: toMessages(rows), HasMore: hasMore}, nil
	}

	before := query.Before
	if before == 0 {
		before = math.MaxInt64
	}
	rows, err := s.store.ListMessagesBefore(ctx, sqlc.ListMessagesBeforeParams{
		ConversationID: convID,
		BeforeID:       before,
		MaxCount:       int32(limit + 1),
	})
	if err != nil {
		return Page{}, fmt.Errorf("list messages before: %w", err)
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return Page{Items: toMessagesFromDesc(rows), HasMore: hasMore}, nil
}

// ListLatest returns the newest page and advances the viewer's read watermark to the
// newest message shown.
func (s *DBService) ListLatest(ctx context.Context, conversationID, viewerID string, limit int) (Page, error) {
	page, err := s.List(ctx, conversationID, ListQuery{Limit: limit})
	if err != nil {
		return Page{}, err
	}
	if len(page.Items) == 0 {
		return page, nil
	}
	if err := s.markReadUpTo(ctx, conversationID, viewerID, page.Items[len(page.Items)-1].ID); err != nil {
		return Page{}, err
	}
	return page, nil
}

func (s *DBService) markReadUpTo(ctx context.Context, conversationID, userID string, messageID int64) error {
	convID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("%w: invalid conversation id", ErrInvalidInput)
	}
	uid, err := dbpkg.ParseUUID(userID)
	if err != nil {
		return fmt.Errorf("%w: invalid user id", ErrInvalidInput)
	}
	if _, err := s.store.MarkParticipantRead(ctx, sqlc.MarkParticipantReadParams{
		MessageID:      messageID,
		ConversationID: convID,
		UserID:         uid,
	}); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkRead moves the user's watermark to the conversation's last message. Repeating
// it is a no-op.
func (s *DBService) MarkRead(ctx context.Context, conversationID, userID string) error {
	convID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("%w: invalid conversation id", ErrInvalidInput)
	}
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: unknown conversation", ErrInvalidInput)
		}
		return fmt.Errorf("get conversation: %w", err)
	}
	var last int64
	if conv.LastMessageID.Valid {
		last = conv.LastMessageID.Int64
	}
	return s.markReadUpTo(ctx, conversationID, userID, last)
}

// MarkAllRead clears unread state across all of the user's conversations.
func (s *DBService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	uid, err := dbpkg.ParseUUID(userID)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid user id", ErrInvalidInput)
	}
	n, err := s.store.MarkAllParticipantsRead(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

func (s *DBService) TotalUnread(ctx context.Context, userID string) (int64, error) {
	uid, err := dbpkg.ParseUUID(userID)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid user id", ErrInvalidInput)
	}
	total, err := s.store.SumUnreadForUser(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	return total, nil
}

// RecomputeUnread rebuilds unread counters from the messages themselves and returns
// the rows that had drifted. An empty conversation id audits every conversation.
func (s *DBService) RecomputeUnread(ctx context.Context, conversationID string) ([]UnreadDrift, error) {
	var convID pgtype.UUID
	if strings.TrimSpace(conversationID) != "" {
		parsed, err := dbpkg.ParseUUID(conversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid conversation id", ErrInvalidInput)
		}
		convID = parsed
	}
	rows, err := s.store.RecomputeUnreadCounts(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("recompute unread: %w", err)
	}
	drift := make([]UnreadDrift, 0, len(rows))
	for _, row := range rows {
		d := UnreadDrift{
			ConversationID: dbpkg.UUIDToString(row.ConversationID),
			UserID:         dbpkg.UUIDToString(row.UserID),
			Previous:       int(row.Previous),
			Current:        int(row.UnreadCount),
		}
		s.logger.Warn("unread counter drift corrected",
			slog.String("conversation_id", d.ConversationID),
			slog.String("user_id", d.UserID),
			slog.Int("previous", d.Previous),
			slog.Int("current", d.Current),
		)
		drift = append(drift, d)
	}
	return drift, nil
}

func toMessage(row sqlc.ChatMessage) Message {
	return Message{
		ID:             row.ID,
		ConversationID: dbpkg.UUIDToString(row.ConversationID),
		SenderID:       dbpkg.UUIDToString(row.SenderID),
		Kind:           row.Kind,
		Text:           dbpkg.TextToString(row.Body),
		MediaKey:       dbpkg.TextToString(row.MediaKey),
		ClientToken:    dbpkg.TextToString(row.ClientToken),
		CreatedAt:      row.CreatedAt.Time,
	}
}

func toMessages(rows []sqlc.ChatMessage) []Message {
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, toMessage(row))
	}
	return messages
}

// toMessagesFromDesc returns messages in oldest-first order (ListMessagesBefore returns DESC; we reverse).
func toMessagesFromDesc(rows []sqlc.ChatMessage) []Message {
	messages := make([]Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		messages = append(messages, toMessage(rows[i]))
	}
	return messages
}
