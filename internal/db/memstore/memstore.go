// Package memstore is an in-memory implementation of the chat queries used in tests.
// It enforces the same unique and foreign key constraints as the Postgres schema and
// reports violations as *pgconn.PgError so callers exercise their real error paths.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/marketline/marketchat/internal/db/sqlc"
)

type participantKey struct {
	conversation [16]byte
	user         [16]byte
}

type state struct {
	users         map[[16]byte]sqlc.User
	conversations map[[16]byte]sqlc.ChatConversation
	participants  map[participantKey]sqlc.ChatParticipant
	messages      []sqlc.ChatMessage
	nextMessageID int64
	columns       map[string][]sqlc.ListTableColumnsRow
}

func (s state) clone() state {
	out := state{
		users:         make(map[[16]byte]sqlc.User, len(s.users)),
		conversations: make(map[[16]byte]sqlc.ChatConversation, len(s.conversations)),
		participants:  make(map[participantKey]sqlc.ChatParticipant, len(s.participants)),
		messages:      append([]sqlc.ChatMessage(nil), s.messages...),
		nextMessageID: s.nextMessageID,
		columns:       make(map[string][]sqlc.ListTableColumnsRow, len(s.columns)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.conversations {
		out.conversations[k] = v
	}
	for k, v := range s.participants {
		out.participants[k] = v
	}
	for k, v := range s.columns {
		out.columns[k] = append([]sqlc.ListTableColumnsRow(nil), v...)
	}
	return out
}

// Store is safe for concurrent use. Transactions are serialized and rolled back by
// restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
	now  time.Time
	fail error
}

var _ sqlc.Querier = (*Store)(nil)

func New() *Store {
	s := &Store{
		st: state{
			users:         map[[16]byte]sqlc.User{},
			conversations: map[[16]byte]sqlc.ChatConversation{},
			participants:  map[participantKey]sqlc.ChatParticipant{},
			nextMessageID: 1,
			columns:       ExpectedColumns(),
		},
		now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return s
}

// ExpectedColumns describes the chat tables as created by the baseline migration.
func ExpectedColumns() map[string][]sqlc.ListTableColumnsRow {
	col := func(table, name, typ string) sqlc.ListTableColumnsRow {
		return sqlc.ListTableColumnsRow{TableName: table, ColumnName: name, DataType: typ}
	}
	return map[string][]sqlc.ListTableColumnsRow{
		"chat_conversations": {
			col("chat_conversations", "id", "uuid"),
			col("chat_conversations", "kind", "text"),
			col("chat_conversations", "pair_key", "text"),
			col("chat_conversations", "created_at", "timestamp with time zone"),
			col("chat_conversations", "updated_at", "timestamp with time zone"),
			col("chat_conversations", "last_message_id", "bigint"),
			col("chat_conversations", "last_message_at", "timestamp with time zone"),
			col("chat_conversations", "last_message_preview", "text"),
		},
		"chat_participants": {
			col("chat_participants", "conversation_id", "uuid"),
			col("chat_participants", "user_id", "uuid"),
			col("chat_participants", "role", "text"),
			col("chat_participants", "last_read_message_id", "bigint"),
			col("chat_participants", "unread_count", "integer"),
			col("chat_participants", "created_at", "timestamp with time zone"),
		},
		"chat_messages": {
			{TableName: "chat_messages", ColumnName: "id", DataType: "bigint", IsIdentity: true},
			col("chat_messages", "conversation_id", "uuid"),
			col("chat_messages", "sender_id", "uuid"),
			col("chat_messages", "kind", "text"),
			col("chat_messages", "body", "text"),
			col("chat_messages", "media_key", "text"),
			col("chat_messages", "client_token", "text"),
			col("chat_messages", "created_at", "timestamp with time zone"),
		},
	}
}

// SetColumns replaces the introspected shape of a table. A nil slice drops the table.
func (s *Store) SetColumns(table string, cols []sqlc.ListTableColumnsRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cols == nil {
		delete(s.st.columns, table)
		return
	}
	s.st.columns[table] = append([]sqlc.ListTableColumnsRow(nil), cols...)
}

// Fail makes every subsequent call return err until Fail(nil) is called.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SetUnread overwrites a participant counter, simulating drift.
func (s *Store) SetUnread(conversationID, userID pgtype.UUID, unread int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{conversation: conversationID.Bytes, user: userID.Bytes}
	if p, ok := s.st.participants[key]; ok {
		p.UnreadCount = unread
		s.st.participants[key] = p
	}
}

// ConversationCount returns how many conversations of kind exist.
func (s *Store) ConversationCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.st.conversations {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// InTx runs fn with all-or-nothing semantics.
func (s *Store) InTx(ctx context.Context, fn func(q sqlc.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return err
	}
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) lock() (func(), error) {
	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return nil, err
	}
	return s.mu.Unlock, nil
}

func (s *Store) tick() pgtype.Timestamptz {
	s.now = s.now.Add(time.Millisecond)
	return pgtype.Timestamptz{Time: s.now, Valid: true}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23503",
		Message:        "insert or update violates foreign key constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func textEqualFold(a, b pgtype.Text) bool {
	return a.Valid && b.Valid && strings.EqualFold(a.String, b.String)
}

// Users

func (s *Store) checkUserUnique(u sqlc.User) error {
	for id, other := range s.st.users {
		if id == u.ID.Bytes {
			continue
		}
		if textEqualFold(other.Email, u.Email) {
			return uniqueViolation("users_email_lower_key")
		}
		if textEqualFold(other.Username, u.Username) {
			return uniqueViolation("users_username_lower_key")
		}
		if u.Role == "admin" && other.Role == "admin" {
			return uniqueViolation("users_single_admin_key")
		}
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, arg sqlc.CreateUserParams) (sqlc.User, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.User{}, err
	}
	defer unlock()
	if _, ok := s.st.users[arg.ID.Bytes]; ok {
		return sqlc.User{}, uniqueViolation("users_pkey")
	}
	ts := s.tick()
	u := sqlc.User{
		ID:          arg.ID,
		Email:       arg.Email,
		Username:    arg.Username,
		DisplayName: arg.DisplayName,
		AvatarUrl:   arg.AvatarUrl,
		Role:        arg.Role,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if u.Role == "" {
		u.Role = "user"
	}
	if err := s.checkUserUnique(u); err != nil {
		return sqlc.User{}, err
	}
	s.st.users[u.ID.Bytes] = u
	return u, nil
}

func (s *Store) UpdateUserProfile(_ context.Context, arg sqlc.UpdateUserProfileParams) (sqlc.User, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.User{}, err
	}
	defer unlock()
	u, ok := s.st.users[arg.ID.Bytes]
	if !ok {
		return sqlc.User{}, pgx.ErrNoRows
	}
	u.Email = arg.Email
	u.Username = arg.Username
	u.DisplayName = arg.DisplayName
	u.AvatarUrl = arg.AvatarUrl
	u.Role = arg.Role
	if err := s.checkUserUnique(u); err != nil {
		return sqlc.User{}, err
	}
	u.UpdatedAt = s.tick()
	s.st.users[u.ID.Bytes] = u
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id pgtype.UUID) (sqlc.User, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.User{}, err
	}
	defer unlock()
	u, ok := s.st.users[id.Bytes]
	if !ok || !id.Valid {
		return sqlc.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *Store) findUser(match func(sqlc.User) bool) (sqlc.User, error) {
	var found []sqlc.User
	for _, u := range s.st.users {
		if match(u) {
			found = append(found, u)
		}
	}
	if len(found) == 0 {
		return sqlc.User{}, pgx.ErrNoRows
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Time.Before(found[j].CreatedAt.Time) })
	return found[0], nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (sqlc.User, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.User{}, err
	}
	defer unlock()
	return s.findUser(func(u sqlc.User) bool {
		return u.Username.Valid && strings.EqualFold(u.Username.String, username)
	})
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (sqlc.User, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.User{}, err
	}
	defer unlock()
	return s.findUser(func(u sqlc.User) bool {
		return u.Email.Valid && strings.EqualFold(u.Email.String, email)
	})
}

func (s *Store) GetAdminUser(_ context.Context) (sqlc.User, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.User{}, err
	}
	defer unlock()
	return s.findUser(func(u sqlc.User) bool { return u.Role == "admin" })
}

// Conversations

func (s *Store) CreateConversation(_ context.Context, arg sqlc.CreateConversationParams) (sqlc.ChatConversation, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatConversation{}, err
	}
	defer unlock()
	if _, ok := s.st.conversations[arg.ID.Bytes]; ok {
		return sqlc.ChatConversation{}, uniqueViolation("chat_conversations_pkey")
	}
	if arg.PairKey.Valid {
		for _, c := range s.st.conversations {
			if c.Kind == arg.Kind && c.PairKey.Valid && c.PairKey.String == arg.PairKey.String {
				return sqlc.ChatConversation{}, uniqueViolation("chat_conversations_pair_key")
			}
		}
	}
	ts := s.tick()
	c := sqlc.ChatConversation{
		ID:        arg.ID,
		Kind:      arg.Kind,
		PairKey:   arg.PairKey,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	s.st.conversations[c.ID.Bytes] = c
	return c, nil
}

func (s *Store) GetConversation(_ context.Context, id pgtype.UUID) (sqlc.ChatConversation, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatConversation{}, err
	}
	defer unlock()
	c, ok := s.st.conversations[id.Bytes]
	if !ok || !id.Valid {
		return sqlc.ChatConversation{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetConversationByPairKey(_ context.Context, arg sqlc.GetConversationByPairKeyParams) (sqlc.ChatConversation, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatConversation{}, err
	}
	defer unlock()
	for _, c := range s.st.conversations {
		if c.Kind == arg.Kind && c.PairKey.Valid && arg.PairKey.Valid && c.PairKey.String == arg.PairKey.String {
			return c, nil
		}
	}
	return sqlc.ChatConversation{}, pgx.ErrNoRows
}

func (s *Store) FindLegacyConversation(_ context.Context, arg sqlc.FindLegacyConversationParams) (sqlc.ChatConversation, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatConversation{}, err
	}
	defer unlock()
	var found []sqlc.ChatConversation
	for _, c := range s.st.conversations {
		if c.Kind != arg.Kind || c.PairKey.Valid {
			continue
		}
		if _, ok := s.st.participants[participantKey{conversation: c.ID.Bytes, user: arg.UserID.Bytes}]; !ok {
			continue
		}
		if c.Kind != "support" {
			if _, ok := s.st.participants[participantKey{conversation: c.ID.Bytes, user: arg.PeerID.Bytes}]; !ok {
				continue
			}
		}
		found = append(found, c)
	}
	if len(found) == 0 {
		return sqlc.ChatConversation{}, pgx.ErrNoRows
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Time.Before(found[j].CreatedAt.Time) })
	return found[0], nil
}

func (s *Store) SetConversationPairKey(_ context.Context, arg sqlc.SetConversationPairKeyParams) (int64, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	c, ok := s.st.conversations[arg.ID.Bytes]
	if !ok || c.PairKey.Valid {
		return 0, nil
	}
	for id, other := range s.st.conversations {
		if id != c.ID.Bytes && other.Kind == c.Kind && other.PairKey.Valid && other.PairKey.String == arg.PairKey.String {
			return 0, uniqueViolation("chat_conversations_pair_key")
		}
	}
	c.PairKey = arg.PairKey
	s.st.conversations[c.ID.Bytes] = c
	return 1, nil
}

// InsertLegacyConversation stores a conversation without a pair key, as rows created
// before pair keys existed look.
func (s *Store) InsertLegacyConversation(id pgtype.UUID, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tick()
	s.st.conversations[id.Bytes] = sqlc.ChatConversation{ID: id, Kind: kind, CreatedAt: ts, UpdatedAt: ts}
}

// Participants

func (s *Store) UpsertParticipant(_ context.Context, arg sqlc.UpsertParticipantParams) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.st.conversations[arg.ConversationID.Bytes]; !ok {
		return foreignKeyViolation("chat_participants_conversation_id_fkey")
	}
	if _, ok := s.st.users[arg.UserID.Bytes]; !ok {
		return foreignKeyViolation("chat_participants_user_id_fkey")
	}
	key := participantKey{conversation: arg.ConversationID.Bytes, user: arg.UserID.Bytes}
	if p, ok := s.st.participants[key]; ok {
		p.Role = arg.Role
		s.st.participants[key] = p
		return nil
	}
	s.st.participants[key] = sqlc.ChatParticipant{
		ConversationID: arg.ConversationID,
		UserID:         arg.UserID,
		Role:           arg.Role,
		CreatedAt:      s.tick(),
	}
	return nil
}

func (s *Store) GetParticipant(_ context.Context, arg sqlc.GetParticipantParams) (sqlc.ChatParticipant, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatParticipant{}, err
	}
	defer unlock()
	p, ok := s.st.participants[participantKey{conversation: arg.ConversationID.Bytes, user: arg.UserID.Bytes}]
	if !ok {
		return sqlc.ChatParticipant{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *Store) participantsOf(conversation [16]byte) []sqlc.ChatParticipant {
	var out []sqlc.ChatParticipant
	for k, p := range s.st.participants {
		if k.conversation == conversation {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Time.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.Time.Before(out[j].CreatedAt.Time)
		}
		return bytes.Compare(out[i].UserID.Bytes[:], out[j].UserID.Bytes[:]) < 0
	})
	return out
}

func (s *Store) ListParticipants(_ context.Context, conversationID pgtype.UUID) ([]sqlc.ChatParticipant, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.participantsOf(conversationID.Bytes), nil
}

type listing struct {
	conv  sqlc.ChatConversation
	self  sqlc.ChatParticipant
	other *sqlc.ChatParticipant
	user  *sqlc.User
}

func (s *Store) listFor(userID [16]byte) []listing {
	var out []listing
	for k, p := range s.st.participants {
		if k.user != userID {
			continue
		}
		conv := s.st.conversations[k.conversation]
		others := 0
		for _, o := range s.participantsOf(k.conversation) {
			if o.UserID.Bytes == userID {
				continue
			}
			o := o
			l := listing{conv: conv, self: p, other: &o}
			if u, ok := s.st.users[o.UserID.Bytes]; ok {
				l.user = &u
			}
			out = append(out, l)
			others++
		}
		if others == 0 {
			out = append(out, listing{conv: conv, self: p})
		}
	}
	return out
}

func recency(c sqlc.ChatConversation) time.Time {
	if c.LastMessageAt.Valid {
		return c.LastMessageAt.Time
	}
	return c.CreatedAt.Time
}

func sortByRecency(items []listing, supportFirst bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].conv, items[j].conv
		if supportFirst && (a.Kind == "support") != (b.Kind == "support") {
			return a.Kind == "support"
		}
		ra, rb := recency(a), recency(b)
		if !ra.Equal(rb) {
			return ra.After(rb)
		}
		return bytes.Compare(a.ID.Bytes[:], b.ID.Bytes[:]) < 0
	})
}

func (l listing) fields() (pgtype.UUID, pgtype.Text, pgtype.Text, pgtype.Text) {
	var otherID pgtype.UUID
	var username, display, avatar pgtype.Text
	if l.other != nil {
		otherID = l.other.UserID
	}
	if l.user != nil {
		username, display, avatar = l.user.Username, l.user.DisplayName, l.user.AvatarUrl
	}
	return otherID, username, display, avatar
}

func (s *Store) ListUserConversations(_ context.Context, userID pgtype.UUID) ([]sqlc.ListUserConversationsRow, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	items := s.listFor(userID.Bytes)
	sortByRecency(items, true)
	rows := make([]sqlc.ListUserConversationsRow, 0, len(items))
	for _, l := range items {
		otherID, username, display, avatar := l.fields()
		rows = append(rows, sqlc.ListUserConversationsRow{
			ID:                 l.conv.ID,
			Kind:               l.conv.Kind,
			CreatedAt:          l.conv.CreatedAt,
			UpdatedAt:          l.conv.UpdatedAt,
			LastMessageID:      l.conv.LastMessageID,
			LastMessageAt:      l.conv.LastMessageAt,
			LastMessagePreview: l.conv.LastMessagePreview,
			Role:               l.self.Role,
			LastReadMessageID:  l.self.LastReadMessageID,
			UnreadCount:        l.self.UnreadCount,
			OtherUserID:        otherID,
			OtherUsername:      username,
			OtherDisplayName:   display,
			OtherAvatarUrl:     avatar,
		})
	}
	return rows, nil
}

func (s *Store) ListAdminConversations(_ context.Context, arg sqlc.ListAdminConversationsParams) ([]sqlc.ListAdminConversationsRow, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	var items []listing
	for _, l := range s.listFor(arg.AdminID.Bytes) {
		if l.conv.Kind != "support" {
			continue
		}
		if arg.CounterpartyID.Valid && (l.other == nil || l.other.UserID.Bytes != arg.CounterpartyID.Bytes) {
			continue
		}
		items = append(items, l)
	}
	sortByRecency(items, false)
	rows := make([]sqlc.ListAdminConversationsRow, 0, len(items))
	for _, l := range items {
		otherID, username, display, avatar := l.fields()
		rows = append(rows, sqlc.ListAdminConversationsRow{
			ID:                 l.conv.ID,
			Kind:               l.conv.Kind,
			CreatedAt:          l.conv.CreatedAt,
			UpdatedAt:          l.conv.UpdatedAt,
			LastMessageID:      l.conv.LastMessageID,
			LastMessageAt:      l.conv.LastMessageAt,
			LastMessagePreview: l.conv.LastMessagePreview,
			Role:               l.self.Role,
			LastReadMessageID:  l.self.LastReadMessageID,
			UnreadCount:        l.self.UnreadCount,
			OtherUserID:        otherID,
			OtherUsername:      username,
			OtherDisplayName:   display,
			OtherAvatarUrl:     avatar,
		})
	}
	return rows, nil
}

// Messages

func (s *Store) GetMessageByClientToken(_ context.Context, arg sqlc.GetMessageByClientTokenParams) (sqlc.ChatMessage, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatMessage{}, err
	}
	defer unlock()
	if !arg.ClientToken.Valid {
		return sqlc.ChatMessage{}, pgx.ErrNoRows
	}
	for _, m := range s.st.messages {
		if m.ConversationID.Bytes == arg.ConversationID.Bytes && m.ClientToken.Valid && m.ClientToken.String == arg.ClientToken.String {
			return m, nil
		}
	}
	return sqlc.ChatMessage{}, pgx.ErrNoRows
}

func (s *Store) CreateMessage(_ context.Context, arg sqlc.CreateMessageParams) (sqlc.ChatMessage, error) {
	unlock, err := s.lock()
	if err != nil {
		return sqlc.ChatMessage{}, err
	}
	defer unlock()
	if _, ok := s.st.conversations[arg.ConversationID.Bytes]; !ok {
		return sqlc.ChatMessage{}, foreignKeyViolation("chat_messages_conversation_id_fkey")
	}
	if arg.ClientToken.Valid {
		for _, m := range s.st.messages {
			if m.ConversationID.Bytes == arg.ConversationID.Bytes && m.ClientToken.Valid && m.ClientToken.String == arg.ClientToken.String {
				return sqlc.ChatMessage{}, uniqueViolation("chat_messages_client_token")
			}
		}
	}
	m := sqlc.ChatMessage{
		ID:             s.st.nextMessageID,
		ConversationID: arg.ConversationID,
		SenderID:       arg.SenderID,
		Kind:           arg.Kind,
		Body:           arg.Body,
		MediaKey:       arg.MediaKey,
		ClientToken:    arg.ClientToken,
		CreatedAt:      s.tick(),
	}
	s.st.nextMessageID++
	s.st.messages = append(s.st.messages, m)
	return m, nil
}

func (s *Store) UpdateConversationLastMessage(_ context.Context, arg sqlc.UpdateConversationLastMessageParams) (int64, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	c, ok := s.st.conversations[arg.ID.Bytes]
	if !ok || (c.LastMessageID.Valid && c.LastMessageID.Int64 >= arg.MessageID) {
		return 0, nil
	}
	c.LastMessageID = pgtype.Int8{Int64: arg.MessageID, Valid: true}
	c.LastMessageAt = arg.MessageAt
	c.LastMessagePreview = arg.Preview
	c.UpdatedAt = s.tick()
	s.st.conversations[c.ID.Bytes] = c
	return 1, nil
}

func (s *Store) IncrementUnreadForOthers(_ context.Context, arg sqlc.IncrementUnreadForOthersParams) (int64, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for k, p := range s.st.participants {
		if k.conversation == arg.ConversationID.Bytes && k.user != arg.UserID.Bytes {
			p.UnreadCount++
			s.st.participants[k] = p
			n++
		}
	}
	return n, nil
}

func (s *Store) countUnread(conversation, user [16]byte, after int64) int32 {
	var n int32
	for _, m := range s.st.messages {
		if m.ConversationID.Bytes == conversation && m.SenderID.Bytes != user && m.ID > after {
			n++
		}
	}
	return n
}

func (s *Store) MarkParticipantRead(_ context.Context, arg sqlc.MarkParticipantReadParams) (int64, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	key := participantKey{conversation: arg.ConversationID.Bytes, user: arg.UserID.Bytes}
	p, ok := s.st.participants[key]
	if !ok {
		return 0, nil
	}
	if arg.MessageID > p.LastReadMessageID {
		p.LastReadMessageID = arg.MessageID
	}
	p.UnreadCount = s.countUnread(key.conversation, key.user, p.LastReadMessageID)
	s.st.participants[key] = p
	return 1, nil
}

func (s *Store) MarkAllParticipantsRead(_ context.Context, userID pgtype.UUID) (int64, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	var n int64
	for k, p := range s.st.participants {
		if k.user != userID.Bytes {
			continue
		}
		c := s.st.conversations[k.conversation]
		if !c.LastMessageID.Valid {
			continue
		}
		if p.UnreadCount == 0 && p.LastReadMessageID >= c.LastMessageID.Int64 {
			continue
		}
		if c.LastMessageID.Int64 > p.LastReadMessageID {
			p.LastReadMessageID = c.LastMessageID.Int64
		}
		p.UnreadCount = 0
		s.st.participants[k] = p
		n++
	}
	return n, nil
}

func (s *Store) ListMessagesBefore(_ context.Context, arg sqlc.ListMessagesBeforeParams) ([]sqlc.ChatMessage, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []sqlc.ChatMessage
	for i := len(s.st.messages) - 1; i >= 0 && int32(len(out)) < arg.MaxCount; i-- {
		m := s.st.messages[i]
		if m.ConversationID.Bytes == arg.ConversationID.Bytes && m.ID < arg.BeforeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListMessagesSince(_ context.Context, arg sqlc.ListMessagesSinceParams) ([]sqlc.ChatMessage, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []sqlc.ChatMessage
	for _, m := range s.st.messages {
		if int32(len(out)) >= arg.MaxCount {
			break
		}
		if m.ConversationID.Bytes == arg.ConversationID.Bytes && m.ID > arg.SinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) SumUnreadForUser(_ context.Context, userID pgtype.UUID) (int64, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	var total int64
	for k, p := range s.st.participants {
		if k.user == userID.Bytes {
			total += int64(p.UnreadCount)
		}
	}
	return total, nil
}

func (s *Store) RecomputeUnreadCounts(_ context.Context, conversationID pgtype.UUID) ([]sqlc.RecomputeUnreadCountsRow, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []sqlc.RecomputeUnreadCountsRow
	for k, p := range s.st.participants {
		if conversationID.Valid && k.conversation != conversationID.Bytes {
			continue
		}
		computed := s.countUnread(k.conversation, k.user, p.LastReadMessageID)
		if computed == p.UnreadCount {
			continue
		}
		out = append(out, sqlc.RecomputeUnreadCountsRow{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			Previous:       p.UnreadCount,
			UnreadCount:    computed,
		})
		p.UnreadCount = computed
		s.st.participants[k] = p
	}
	return out, nil
}

// Schema

func (s *Store) ListTableColumns(_ context.Context, tableNames []string) ([]sqlc.ListTableColumnsRow, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	names := append([]string(nil), tableNames...)
	sort.Strings(names)
	var out []sqlc.ListTableColumnsRow
	for _, name := range names {
		out = append(out, s.st.columns[name]...)
	}
	return out, nil
}
