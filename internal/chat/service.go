// Package chat is the request-facing facade of the messaging core. Every
// operation passes the schema gate, resolves the caller and then works on the
// directory, the message store and the media gateway, keeping the presence
// caches current as a side effect.
package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/marketline/marketchat/internal/conversation"
	"github.com/marketline/marketchat/internal/identity"
	"github.com/marketline/marketchat/internal/media"
	"github.com/marketline/marketchat/internal/message"
	"github.com/marketline/marketchat/internal/metrics"
	"github.com/marketline/marketchat/internal/presence"
)

// AdminAlias addresses the support line without knowing the admin's id.
const AdminAlias = "admin"

// MaxPresenceRefs bounds a bulk presence lookup.
const MaxPresenceRefs = 100

// Gate blocks chat operations until storage is usable.
type Gate interface {
	Ensure(ctx context.Context) error
}

type Service struct {
	gate     Gate
	users    *identity.Service
	convs    *conversation.Service
	messages message.Service
	presence *presence.State
	media    *media.Service
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(
	log *slog.Logger,
	gate Gate,
	users *identity.Service,
	convs *conversation.Service,
	messages message.Service,
	presenceState *presence.State,
	mediaService *media.Service,
	m *metrics.Metrics,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gate:     gate,
		users:    users,
		convs:    convs,
		messages: messages,
		presence: presenceState,
		media:    mediaService,
		metrics:  m,
		now:      time.Now,
		logger:   log.With(slog.String("service", "chat")),
	}
}

// Bootstrap provisions or refreshes the singleton admin.
func (s *Service) Bootstrap(ctx context.Context, claims identity.Claims) (identity.User, error) {
	admin, err := s.users.EnsureAdmin(ctx, claims)
	if err != nil {
		return identity.User{}, classify(err)
	}
	return admin, nil
}

// Caller resolves the authenticated caller, provisioning a row on first contact,
// and records a heartbeat for it.
func (s *Service) Caller(ctx context.Context, claims identity.Claims) (identity.User, error) {
	if err := s.gate.Ensure(ctx); err != nil {
		return identity.User{}, classify(err)
	}
	user, err := s.users.Ensure(ctx, claims)
	if err != nil {
		return identity.User{}, classify(err)
	}
	s.presence.Heartbeat(user.ID, claims.Ref, user.Username, user.Email)
	return user, nil
}

func (s *Service) admin(ctx context.Context) (identity.User, error) {
	admin, err := s.users.Admin(ctx)
	if err != nil {
		return identity.User{}, classify(err)
	}
	return admin, nil
}

// Heartbeat refreshes the caller's presence and remembers extra aliases.
func (s *Service) Heartbeat(ctx context.Context, claims identity.Claims, aliases []string) (identity.User, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return identity.User{}, err
	}
	s.presence.Heartbeat(user.ID, aliases...)
	return user, nil
}

// Presence reports which refs are online. Refs the cache does not know are
// resolved through the identity store.
func (s *Service) Presence(ctx context.Context, claims identity.Claims, refs []string, active bool) (map[string]bool, error) {
	if _, err := s.Caller(ctx, claims); err != nil {
		return nil, err
	}
	if len(refs) > MaxPresenceRefs {
		return nil, NewError(CodeInvalidInput, "too many refs", nil)
	}
	window := s.presence.Config().OnlineWindow
	if active {
		window = s.presence.Config().ActiveWindow
	}
	out := s.presence.OnlineMany(refs, active)
	for ref, online := range out {
		if online {
			continue
		}
		if _, seen := s.presence.LastSeen(ref); seen {
			continue
		}
		user, err := s.users.Resolve(ctx, ref)
		if err != nil {
			if !errors.Is(err, identity.ErrNotFound) {
				s.logger.Debug("presence resolve failed", slog.String("ref", ref), slog.Any("error", err))
			}
			continue
		}
		out[ref] = s.presence.Online(user.ID, window)
	}
	return out, nil
}

// ConversationList is a caller's conversation list and its version token.
type ConversationList struct {
	Items       []conversation.ListItem `json:"items"`
	Version     string                  `json:"version"`
	NotModified bool                    `json:"-"`
}

// ListConversations lists the caller's conversations, optionally narrowed to one
// counterparty. A matching ifNoneMatch short-circuits to NotModified.
func (s *Service) ListConversations(ctx context.Context, claims identity.Claims, counterparty, ifNoneMatch string) (ConversationList, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return ConversationList{}, err
	}
	filter := ""
	if strings.TrimSpace(counterparty) != "" {
		other, err := s.users.Resolve(ctx, counterparty)
		if err != nil {
			return ConversationList{}, classify(err)
		}
		filter = other.ID
	}
	if token, ok := s.presence.Version(user.ID, filter); ok && presence.MatchesETag(ifNoneMatch, token) {
		s.metrics.NotModified("conversations")
		return ConversationList{Version: token, NotModified: true}, nil
	}

	var items []conversation.ListItem
	if user.IsAdmin() {
		items, err = s.convs.ListForAdmin(ctx, user, filter)
	} else {
		var admin identity.User
		admin, err = s.admin(ctx)
		if err != nil {
			return ConversationList{}, err
		}
		var support conversation.Conversation
		if support, err = s.convs.GetOrCreateSupport(ctx, user, admin); err != nil {
			return ConversationList{}, classify(err)
		}
		s.announce(support, user.ID, admin.ID)
		items, err = s.convs.ListForUser(ctx, user, admin)
		if err == nil && filter != "" {
			items = withCounterparty(items, filter)
		}
	}
	if err != nil {
		return ConversationList{}, classify(err)
	}

	token, err := listVersion(items)
	if err != nil {
		s.logger.Debug("version token skipped", slog.Any("error", err))
	} else {
		s.presence.SetVersion(user.ID, filter, token)
	}
	if filter == "" {
		s.presence.SetUnread(user.ID, sumUnread(items))
	}
	if token != "" && presence.MatchesETag(ifNoneMatch, token) {
		s.metrics.NotModified("conversations")
		return ConversationList{Version: token, NotModified: true}, nil
	}
	return ConversationList{Items: items, Version: token}, nil
}

func withCounterparty(items []conversation.ListItem, userID string) []conversation.ListItem {
	out := make([]conversation.ListItem, 0, 1)
	for _, item := range items {
		if item.Counterparty.ID == userID {
			out = append(out, item)
		}
	}
	return out
}

func sumUnread(items []conversation.ListItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.UnreadCount)
	}
	return total
}

func listVersion(items []conversation.ListItem) (string, error) {
	entries := make([]presence.VersionEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, presence.VersionEntry{
			ID:            item.ID,
			UpdatedAt:     item.UpdatedAt.UnixMilli(),
			LastMessageID: item.LastMessageID,
			Preview:       item.LastMessagePreview,
			Unread:        item.UnreadCount,
		})
	}
	return presence.ComputeVersion(entries)
}

// PageRequest addresses a message page by conversation id or by counterparty.
type PageRequest struct {
	ConversationID string
	With           string
	Query          message.ListQuery
	IfNoneMatch    string
}

// Page is a message page with its version token.
type Page struct {
	message.Page
	ConversationID string `json:"conversation_id"`
	Version        string `json:"version,omitempty"`
	NotModified    bool   `json:"-"`
}

// Messages returns a page of messages. Without a cursor the newest page is
// returned and, for participants, the read watermark advances to it.
func (s *Service) Messages(ctx context.Context, claims identity.Claims, req PageRequest) (Page, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return Page{}, err
	}
	var (
		conv   conversation.Conversation
		member = true
	)
	switch {
	case strings.TrimSpace(req.ConversationID) != "":
		conv, member, err = s.authorize(ctx, user, req.ConversationID, true)
	case strings.TrimSpace(req.With) != "":
		conv, err = s.conversationWith(ctx, user, req.With)
	default:
		err = NewError(CodeInvalidInput, "conversation id or counterparty is required", nil)
	}
	if err != nil {
		return Page{}, err
	}

	token := s.pageVersion(conv, req.Query)
	if token != "" && presence.MatchesETag(req.IfNoneMatch, token) {
		s.metrics.NotModified("messages")
		return Page{ConversationID: conv.ID, Version: token, NotModified: true}, nil
	}

	var page message.Page
	if req.Query.Before == 0 && req.Query.Since == 0 && member {
		page, err = s.messages.ListLatest(ctx, conv.ID, user.ID, req.Query.Limit)
		if err == nil {
			s.presence.Invalidate(user.ID)
		}
	} else {
		page, err = s.messages.List(ctx, conv.ID, req.Query)
	}
	if err != nil {
		return Page{}, classify(err)
	}
	s.sign(page.Items)
	return Page{Page: page, ConversationID: conv.ID, Version: token}, nil
}

// pageVersion changes whenever the conversation gains a message and at least
// twice per media URL lifetime, so cached pages never hold expired links.
func (s *Service) pageVersion(conv conversation.Conversation, q message.ListQuery) string {
	period := int64(s.media.URLTTL() / 2 / time.Second)
	if period < 1 {
		period = 1
	}
	token, err := presence.PageVersion(presence.PageKey{
		ConversationID: conv.ID,
		LastMessageID:  conv.LastMessageID,
		Before:         q.Before,
		Since:          q.Since,
		Limit:          q.Limit,
		Epoch:          s.now().Unix() / period,
	})
	if err != nil {
		s.logger.Debug("page version skipped", slog.Any("error", err))
		return ""
	}
	return token
}

func (s *Service) sign(items []message.Message) {
	for i := range items {
		if items[i].MediaKey != "" {
			items[i].MediaURL = s.media.Sign(items[i].MediaKey).URL
		}
	}
}

// SendInput addresses a message by conversation id or by counterparty.
type SendInput struct {
	ConversationID string
	To             string
	Kind           string
	Text           string
	MediaRef       string
	ClientToken    string
}

type SendResult struct {
	Message  message.Message `json:"message"`
	Replayed bool            `json:"replayed"`
}

// Send appends a message. A repeated client token returns the original message.
func (s *Service) Send(ctx context.Context, claims identity.Claims, in SendInput) (SendResult, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return SendResult{}, err
	}
	conv, err := s.target(ctx, user, in.ConversationID, in.To)
	if err != nil {
		return SendResult{}, err
	}

	kind := strings.TrimSpace(in.Kind)
	var key string
	if ref := strings.TrimSpace(in.MediaRef); ref != "" {
		key, err = s.media.ResolveRef(ref)
		if err != nil {
			return SendResult{}, classify(err)
		}
		if !media.InNamespace(key, conv.ID) {
			return SendResult{}, NewError(CodeInvalidMedia, "media belongs to another conversation", nil)
		}
		mk := string(media.KindOfKey(key))
		if kind == "" {
			kind = mk
		}
		if kind != mk {
			return SendResult{}, NewError(CodeInvalidMedia, "message kind does not match the media", nil)
		}
	}

	res, err := s.messages.Append(ctx, message.AppendInput{
		ConversationID: conv.ID,
		SenderID:       user.ID,
		Kind:           kind,
		Text:           in.Text,
		MediaKey:       key,
		ClientToken:    in.ClientToken,
	})
	if err != nil {
		return SendResult{}, classify(err)
	}
	s.metrics.MessageAppended(res.Message.Kind, res.Replayed)
	if !res.Replayed {
		s.invalidateParticipants(ctx, conv.ID)
	}
	items := []message.Message{res.Message}
	s.sign(items)
	return SendResult{Message: items[0], Replayed: res.Replayed}, nil
}

// UploadInput is an attachment addressed by conversation id or by counterparty.
type UploadInput struct {
	ConversationID string
	To             string
	Filename       string
	ContentType    string
	Size           int64
	Reader         io.Reader
}

// Upload stores an attachment for a later Send and returns its signed reference.
func (s *Service) Upload(ctx context.Context, claims identity.Claims, in UploadInput) (media.Signed, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return media.Signed{}, err
	}
	conv, err := s.target(ctx, user, in.ConversationID, in.To)
	if err != nil {
		return media.Signed{}, err
	}
	signed, err := s.media.Upload(ctx, media.UploadInput{
		ConversationID: conv.ID,
		Filename:       in.Filename,
		ContentType:    in.ContentType,
		Size:           in.Size,
		Reader:         in.Reader,
	})
	if err != nil {
		return media.Signed{}, classify(err)
	}
	return signed, nil
}

// OpenMedia streams the object a signed token points to. The token is the only
// credential.
func (s *Service) OpenMedia(ctx context.Context, token string) (io.ReadCloser, media.Object, error) {
	reader, obj, err := s.media.Open(ctx, token)
	switch {
	case err == nil:
		return reader, obj, nil
	case errors.Is(err, media.ErrTokenInvalid), errors.Is(err, media.ErrTokenExpired):
		return nil, media.Object{}, NewError(CodeForbidden, err.Error(), err)
	default:
		return nil, media.Object{}, classify(err)
	}
}

// MarkRead moves the caller's watermark to the newest message of a conversation.
func (s *Service) MarkRead(ctx context.Context, claims identity.Claims, conversationID string) error {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return err
	}
	conv, _, err := s.authorize(ctx, user, conversationID, false)
	if err != nil {
		return err
	}
	if err := s.messages.MarkRead(ctx, conv.ID, user.ID); err != nil {
		return classify(err)
	}
	s.presence.Invalidate(user.ID)
	return nil
}

// MarkAllRead clears the caller's unread state everywhere.
func (s *Service) MarkAllRead(ctx context.Context, claims identity.Claims) (int64, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkAllRead(ctx, user.ID)
	if err != nil {
		return 0, classify(err)
	}
	s.presence.Invalidate(user.ID)
	s.presence.SetUnread(user.ID, 0)
	return n, nil
}

// Unread returns the caller's total unread count, served from the mirror when warm.
func (s *Service) Unread(ctx context.Context, claims identity.Claims) (int64, error) {
	user, err := s.Caller(ctx, claims)
	if err != nil {
		return 0, err
	}
	if n, ok := s.presence.Unread(user.ID); ok {
		return n, nil
	}
	n, err := s.messages.TotalUnread(ctx, user.ID)
	if err != nil {
		return 0, classify(err)
	}
	s.presence.SetUnread(user.ID, n)
	return n, nil
}

// AuditUnread recomputes unread counters from messages. An empty conversation id
// audits everything.
func (s *Service) AuditUnread(ctx context.Context, conversationID string) ([]message.UnreadDrift, error) {
	if err := s.gate.Ensure(ctx); err != nil {
		return nil, classify(err)
	}
	drift, err := s.messages.RecomputeUnread(ctx, conversationID)
	if err != nil {
		return nil, classify(err)
	}
	for _, d := range drift {
		s.presence.Invalidate(d.UserID)
	}
	s.metrics.UnreadDrift(len(drift))
	return drift, nil
}

// target resolves the conversation a write is addressed to. The caller must be a
// participant.
func (s *Service) target(ctx context.Context, user identity.User, conversationID, to string) (conversation.Conversation, error) {
	switch {
	case strings.TrimSpace(conversationID) != "":
		conv, _, err := s.authorize(ctx, user, conversationID, false)
		return conv, err
	case strings.TrimSpace(to) != "":
		return s.conversationWith(ctx, user, to)
	default:
		return conversation.Conversation{}, NewError(CodeInvalidInput, "conversation id or recipient is required", nil)
	}
}

// authorize loads a conversation the caller belongs to. With allowAdmin the admin
// may also read conversations it is not part of; member reports which case applied.
func (s *Service) authorize(ctx context.Context, user identity.User, conversationID string, allowAdmin bool) (conversation.Conversation, bool, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, false, classify(err)
	}
	_, err = s.convs.Participant(ctx, conv.ID, user.ID)
	switch {
	case err == nil:
		return conv, true, nil
	case errors.Is(err, conversation.ErrNotParticipant) && allowAdmin && user.IsAdmin():
		return conv, false, nil
	default:
		return conversation.Conversation{}, false, classify(err)
	}
}

// conversationWith resolves the conversation between the caller and ref: the
// admin always talks through support conversations, anyone talking to the admin
// does too, and two customers share a direct conversation.
func (s *Service) conversationWith(ctx context.Context, caller identity.User, ref string) (conversation.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if caller.IsAdmin() {
		other, err := s.users.Resolve(ctx, ref)
		if err != nil {
			return conversation.Conversation{}, classify(err)
		}
		conv, err := s.convs.GetOrCreateSupport(ctx, other, caller)
		if err != nil {
			return conversation.Conversation{}, classify(err)
		}
		s.announce(conv, caller.ID, other.ID)
		return conv, nil
	}

	admin, err := s.admin(ctx)
	if err != nil {
		return conversation.Conversation{}, err
	}
	other := admin
	if !strings.EqualFold(ref, AdminAlias) {
		other, err = s.users.Resolve(ctx, ref)
		if err != nil {
			return conversation.Conversation{}, classify(err)
		}
	}
	var conv conversation.Conversation
	if other.ID == admin.ID {
		conv, err = s.convs.GetOrCreateSupport(ctx, caller, admin)
	} else {
		conv, err = s.convs.GetOrCreateDirect(ctx, caller, other)
	}
	if err != nil {
		return conversation.Conversation{}, classify(err)
	}
	s.announce(conv, caller.ID, other.ID)
	return conv, nil
}

// announce drops cached list versions of both members when conv was just
// created, so neither of them is told their list is unchanged.
func (s *Service) announce(conv conversation.Conversation, userIDs ...string) {
	if conv.Created {
		s.presence.Invalidate(userIDs...)
	}
}

func (s *Service) invalidateParticipants(ctx context.Context, conversationID string) {
	participants, err := s.convs.Participants(ctx, conversationID)
	if err != nil {
		s.logger.Debug("participant invalidation skipped", slog.String("conversation_id", conversationID), slog.Any("error", err))
		return
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	s.presence.Invalidate(ids...)
}
