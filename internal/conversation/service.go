package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/db/sqlc"
	"github.com/marketline/marketchat/internal/identity"
)

// Store is the subset of queries the directory needs.
type Store interface {
	GetConversation(ctx context.Context, id pgtype.UUID) (sqlc.ChatConversation, error)
	GetConversationByPairKey(ctx context.Context, arg sqlc.GetConversationByPairKeyParams) (sqlc.ChatConversation, error)
	FindLegacyConversation(ctx context.Context, arg sqlc.FindLegacyConversationParams) (sqlc.ChatConversation, error)
	CreateConversation(ctx context.Context, arg sqlc.CreateConversationParams) (sqlc.ChatConversation, error)
	SetConversationPairKey(ctx context.Context, arg sqlc.SetConversationPairKeyParams) (int64, error)
	UpsertParticipant(ctx context.Context, arg sqlc.UpsertParticipantParams) error
	GetParticipant(ctx context.Context, arg sqlc.GetParticipantParams) (sqlc.ChatParticipant, error)
	ListParticipants(ctx context.Context, conversationID pgtype.UUID) ([]sqlc.ChatParticipant, error)
	ListUserConversations(ctx context.Context, userID pgtype.UUID) ([]sqlc.ListUserConversationsRow, error)
	ListAdminConversations(ctx context.Context, arg sqlc.ListAdminConversationsParams) ([]sqlc.ListAdminConversationsRow, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "conversation")),
	}
}

type member struct {
	userID pgtype.UUID
	role   string
}

// GetOrCreateSupport returns the support conversation between a customer and the admin,
// creating it on first use. Concurrent callers converge on a single row.
func (s *Service) GetOrCreateSupport(ctx context.Context, user, admin identity.User) (Conversation, error) {
	if user.ID == admin.ID {
		return Conversation{}, ErrSelfPair
	}
	userID, err := dbpkg.ParseUUID(user.ID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid user id: %w", err)
	}
	adminID, err := dbpkg.ParseUUID(admin.ID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid admin id: %w", err)
	}
	return s.getOrCreate(ctx, KindSupport, PairKey(user.ID, admin.ID), uuid.New(),
		member{userID: userID, role: RoleUser},
		member{userID: adminID, role: RoleAdmin},
	)
}

// GetOrCreateDirect returns the direct conversation between two non-admin users.
func (s *Service) GetOrCreateDirect(ctx context.Context, a, b identity.User) (Conversation, error) {
	if a.ID == b.ID {
		return Conversation{}, ErrSelfPair
	}
	if a.IsAdmin() || b.IsAdmin() {
		return Conversation{}, ErrAdminPair
	}
	aID, err := dbpkg.ParseUUID(a.ID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid user id: %w", err)
	}
	bID, err := dbpkg.ParseUUID(b.ID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid user id: %w", err)
	}
	key := PairKey(a.ID, b.ID)
	return s.getOrCreate(ctx, KindDirect, key, DirectConversationID(key),
		member{userID: aID, role: RoleUser},
		member{userID: bID, role: RoleUser},
	)
}

func (s *Service) getOrCreate(ctx context.Context, kind, pairKey string, id uuid.UUID, first, second member) (Conversation, error) {
	key := pgtype.Text{String: pairKey, Valid: true}

	created := false
	row, err := s.store.GetConversationByPairKey(ctx, sqlc.GetConversationByPairKeyParams{Kind: kind, PairKey: key})
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		row, err = s.adoptLegacy(ctx, kind, key, first, second)
		if errors.Is(err, pgx.ErrNoRows) {
			row, created, err = s.create(ctx, kind, key, id)
		}
		if err != nil {
			return Conversation{}, err
		}
	default:
		return Conversation{}, fmt.Errorf("get conversation by pair key: %w", err)
	}

	for _, m := range []member{first, second} {
		if err := s.store.UpsertParticipant(ctx, sqlc.UpsertParticipantParams{
			ConversationID: row.ID,
			UserID:         m.userID,
			Role:           m.role,
		}); err != nil {
			return Conversation{}, fmt.Errorf("attach participant: %w", err)
		}
	}
	conv := toConversation(row)
	conv.Created = created
	return conv, nil
}

// adoptLegacy finds a conversation created before pair keys existed and backfills its key.
func (s *Service) adoptLegacy(ctx context.Context, kind string, key pgtype.Text, first, second member) (sqlc.ChatConversation, error) {
	row, err := s.store.FindLegacyConversation(ctx, sqlc.FindLegacyConversationParams{
		Kind:   kind,
		UserID: first.userID,
		PeerID: second.userID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sqlc.ChatConversation{}, err
		}
		return sqlc.ChatConversation{}, fmt.Errorf("find legacy conversation: %w", err)
	}
	if _, err := s.store.SetConversationPairKey(ctx, sqlc.SetConversationPairKeyParams{ID: row.ID, PairKey: key}); err != nil {
		if !dbpkg.IsUniqueViolation(err) {
			return sqlc.ChatConversation{}, fmt.Errorf("backfill pair key: %w", err)
		}
		// Another row already owns the key; that one wins.
		return s.byPairKey(ctx, kind, key)
	}
	s.logger.Info("backfilled conversation pair key", slog.String("conversation_id", dbpkg.UUIDToString(row.ID)), slog.String("kind", kind))
	row.PairKey = key
	return row, nil
}

// create inserts the conversation. Losing an insert race returns the winner's
// row and reports false.
func (s *Service) create(ctx context.Context, kind string, key pgtype.Text, id uuid.UUID) (sqlc.ChatConversation, bool, error) {
	row, err := s.store.CreateConversation(ctx, sqlc.CreateConversationParams{
		ID:      dbpkg.UUIDFrom(id),
		Kind:    kind,
		PairKey: key,
	})
	if err == nil {
		s.logger.Info("conversation created", slog.String("conversation_id", id.String()), slog.String("kind", kind))
		return row, true, nil
	}
	if !dbpkg.IsUniqueViolation(err) {
		return sqlc.ChatConversation{}, false, fmt.Errorf("create conversation: %w", err)
	}
	row, err = s.byPairKey(ctx, kind, key)
	return row, false, err
}

func (s *Service) byPairKey(ctx context.Context, kind string, key pgtype.Text) (sqlc.ChatConversation, error) {
	row, err := s.store.GetConversationByPairKey(ctx, sqlc.GetConversationByPairKeyParams{Kind: kind, PairKey: key})
	if err != nil {
		return sqlc.ChatConversation{}, fmt.Errorf("get conversation by pair key: %w", err)
	}
	return row, nil
}

func (s *Service) Get(ctx context.Context, conversationID string) (Conversation, error) {
	id, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, ErrNotFound
	}
	row, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return toConversation(row), nil
}

// Participant returns the membership of userID, or ErrNotParticipant.
func (s *Service) Participant(ctx context.Context, conversationID, userID string) (Participant, error) {
	convID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Participant{}, ErrNotFound
	}
	uid, err := dbpkg.ParseUUID(userID)
	if err != nil {
		return Participant{}, ErrNotParticipant
	}
	row, err := s.store.GetParticipant(ctx, sqlc.GetParticipantParams{ConversationID: convID, UserID: uid})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Participant{}, ErrNotParticipant
		}
		return Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return toParticipant(row), nil
}

func (s *Service) Participants(ctx context.Context, conversationID string) ([]Participant, error) {
	convID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, ErrNotFound
	}
	rows, err := s.store.ListParticipants(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, toParticipant(row))
	}
	return out, nil
}

// ListForUser lists a customer's conversations: support first, then by recency.
// The support conversation is created when missing so every customer has one.
func (s *Service) ListForUser(ctx context.Context, user, admin identity.User) ([]ListItem, error) {
	if user.IsAdmin() {
		return s.ListForAdmin(ctx, user, "")
	}
	if _, err := s.GetOrCreateSupport(ctx, user, admin); err != nil {
		return nil, err
	}
	uid, err := dbpkg.ParseUUID(user.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	rows, err := s.store.ListUserConversations(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list user conversations: %w", err)
	}
	adminProfile := Profile{
		ID:          admin.ID,
		Username:    admin.Username,
		DisplayName: admin.DisplayName,
		AvatarURL:   admin.AvatarURL,
	}
	items := make([]ListItem, 0, len(rows))
	for _, row := range rows {
		item := toListItemFields(
			row.ID, row.Kind, row.CreatedAt, row.UpdatedAt,
			row.LastMessageID, row.LastMessageAt, row.LastMessagePreview,
			row.LastReadMessageID, row.UnreadCount,
			row.OtherUserID, row.OtherUsername, row.OtherDisplayName, row.OtherAvatarUrl,
		)
		if item.Kind == KindSupport {
			item.Counterparty = adminProfile
		}
		items = append(items, item)
	}
	return items, nil
}

// ListForAdmin lists support conversations of the admin, optionally narrowed to one customer.
func (s *Service) ListForAdmin(ctx context.Context, admin identity.User, counterpartyID string) ([]ListItem, error) {
	adminID, err := dbpkg.ParseUUID(admin.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid admin id: %w", err)
	}
	var counterparty pgtype.UUID
	if strings.TrimSpace(counterpartyID) != "" {
		counterparty, err = dbpkg.ParseUUID(counterpartyID)
		if err != nil {
			return nil, fmt.Errorf("invalid counterparty id: %w", err)
		}
	}
	rows, err := s.store.ListAdminConversations(ctx, sqlc.ListAdminConversationsParams{
		AdminID:        adminID,
		CounterpartyID: counterparty,
	})
	if err != nil {
		return nil, fmt.Errorf("list admin conversations: %w", err)
	}
	items := make([]ListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toListItemFields(
			row.ID, row.Kind, row.CreatedAt, row.UpdatedAt,
			row.LastMessageID, row.LastMessageAt, row.LastMessagePreview,
			row.LastReadMessageID, row.UnreadCount,
			row.OtherUserID, row.OtherUsername, row.OtherDisplayName, row.OtherAvatarUrl,
		))
	}
	return items, nil
}

func toConversation(row sqlc.ChatConversation) Conversation {
	c := Conversation{
		ID:                 dbpkg.UUIDToString(row.ID),
		Kind:               row.Kind,
		PairKey:            dbpkg.TextToString(row.PairKey),
		LastMessagePreview: dbpkg.TextToString(row.LastMessagePreview),
		CreatedAt:          row.CreatedAt.Time,
		UpdatedAt:          row.UpdatedAt.Time,
	}
	if row.LastMessageID.Valid {
		c.LastMessageID = row.LastMessageID.Int64
	}
	c.LastMessageAt = optionalTime(row.LastMessageAt)
	return c
}

func toParticipant(row sqlc.ChatParticipant) Participant {
	return Participant{
		ConversationID:    dbpkg.UUIDToString(row.ConversationID),
		UserID:            dbpkg.UUIDToString(row.UserID),
		Role:              row.Role,
		LastReadMessageID: row.LastReadMessageID,
		UnreadCount:       int(row.UnreadCount),
	}
}

func toListItemFields(
	id pgtype.UUID,
	kind string,
	createdAt pgtype.Timestamptz,
	updatedAt pgtype.Timestamptz,
	lastMessageID pgtype.Int8,
	lastMessageAt pgtype.Timestamptz,
	lastMessagePreview pgtype.Text,
	lastReadMessageID int64,
	unreadCount int32,
	otherUserID pgtype.UUID,
	otherUsername pgtype.Text,
	otherDisplayName pgtype.Text,
	otherAvatarURL pgtype.Text,
) ListItem {
	item := ListItem{
		ID:                 dbpkg.UUIDToString(id),
		Kind:               kind,
		LastMessagePreview: dbpkg.TextToString(lastMessagePreview),
		LastMessageAt:      optionalTime(lastMessageAt),
		LastReadMessageID:  lastReadMessageID,
		UnreadCount:        int(unreadCount),
		CreatedAt:          createdAt.Time,
		UpdatedAt:          updatedAt.Time,
		Counterparty: Profile{
			ID:          dbpkg.UUIDToString(otherUserID),
			Username:    dbpkg.TextToString(otherUsername),
			DisplayName: dbpkg.TextToString(otherDisplayName),
			AvatarURL:   dbpkg.TextToString(otherAvatarURL),
		},
	}
	if lastMessageID.Valid {
		item.LastMessageID = lastMessageID.Int64
	}
	return item
}

func optionalTime(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
