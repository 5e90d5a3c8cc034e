package message

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketline/marketchat/internal/conversation"
	dbpkg "github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/db/memstore"
	"github.com/marketline/marketchat/internal/identity"
)

type fixture struct {
	store *memstore.Store
	svc   *DBService
	convs *conversation.Service
	alice identity.User
	admin identity.User
	conv  conversation.Conversation
}

func newFixture(t *testing.T, limits Limits) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	users := identity.NewService(nil, store)
	admin, err := users.EnsureAdmin(ctx, identity.Claims{Username: "support"})
	require.NoError(t, err)
	alice, err := users.Ensure(ctx, identity.Claims{Ref: "alice", Username: "alice"})
	require.NoError(t, err)
	convs := conversation.NewService(nil, store)
	conv, err := convs.GetOrCreateSupport(ctx, alice, admin)
	require.NoError(t, err)
	return &fixture{
		store: store,
		svc:   NewService(nil, store, limits),
		convs: convs,
		alice: alice,
		admin: admin,
		conv:  conv,
	}
}

func (f *fixture) send(t *testing.T, sender identity.User, text, token string) AppendResult {
	t.Helper()
	res, err := f.svc.Append(context.Background(), AppendInput{
		ConversationID: f.conv.ID,
		SenderID:       sender.ID,
		Kind:           KindText,
		Text:           text,
		ClientToken:    token,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) unread(t *testing.T, user identity.User) int {
	t.Helper()
	p, err := f.convs.Participant(context.Background(), f.conv.ID, user.ID)
	require.NoError(t, err)
	return p.UnreadCount
}

func TestAppendCountsUnreadForOthers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	var last int64
	for i := 0; i < 4; i++ {
		res := f.send(t, f.alice, "message", "")
		assert.Greater(t, res.Message.ID, last, "ids must strictly increase")
		last = res.Message.ID
	}
	assert.Equal(t, 4, f.unread(t, f.admin))
	assert.Equal(t, 0, f.unread(t, f.alice))

	conv, err := f.convs.Get(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, last, conv.LastMessageID)
	assert.Equal(t, "message", conv.LastMessagePreview)

	total, err := f.svc.TotalUnread(context.Background(), f.admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}

func TestAppendReplaysClientToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	first := f.send(t, f.alice, "hello", "abc123")
	second := f.send(t, f.alice, "hello", "abc123")

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Equal(t, 1, f.unread(t, f.admin), "replay must not count twice")

	page, err := f.svc.List(context.Background(), f.conv.ID, ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hello", page.Items[0].Text)
	assert.Equal(t, "abc123", page.Items[0].ClientToken)
}

func TestAppendConcurrentSameToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	const workers = 8
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Append(context.Background(), AppendInput{
				ConversationID: f.conv.ID,
				SenderID:       f.alice.ID,
				Text:           "once",
				ClientToken:    "tok-1",
			})
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			ids[i] = res.Message.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	page, err := f.svc.List(context.Background(), f.conv.ID, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, f.unread(t, f.admin))
}

func TestAppendTokenFromOtherSenderConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	f.send(t, f.alice, "hi", "shared")
	_, err := f.svc.Append(context.Background(), AppendInput{
		ConversationID: f.conv.ID,
		SenderID:       f.admin.ID,
		Text:           "hi back",
		ClientToken:    "shared",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Limits{MaxTextRunes: 5})
	tests := []struct {
		name  string
		input AppendInput
	}{
		{name: "blank text", input: AppendInput{Text: "   "}},
		{name: "too long", input: AppendInput{Text: "ééééééé"}},
		{name: "unknown kind", input: AppendInput{Kind: "video", Text: "x", MediaKey: "k"}},
		{name: "image without media", input: AppendInput{Kind: KindImage}},
		{name: "text with media", input: AppendInput{Text: "x", MediaKey: "k"}},
		{name: "long token", input: AppendInput{Text: "x", ClientToken: strings.Repeat("t", 129)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := tt.input
			in.ConversationID = f.conv.ID
			in.SenderID = f.alice.ID
			_, err := f.svc.Append(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAppendMediaUsesLabelPreview(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	res, err := f.svc.Append(context.Background(), AppendInput{
		ConversationID: f.conv.ID,
		SenderID:       f.alice.ID,
		Kind:           KindImage,
		MediaKey:       "conv/abc.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "conv/abc.jpg", res.Message.MediaKey)

	conv, err := f.convs.Get(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "[Image]", conv.LastMessagePreview)
}

func TestListPagination(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Limits{PageDefault: 2, PageMax: 3})
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, f.alice, "m", "").Message.ID)
	}
	idsOf := func(p Page) []int64 {
		out := make([]int64, 0, len(p.Items))
		for _, m := range p.Items {
			out = append(out, m.ID)
		}
		return out
	}

	latest, err := f.svc.List(ctx, f.conv.ID, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, ids[3:], idsOf(latest))
	assert.True(t, latest.HasMore)

	older, err := f.svc.List(ctx, f.conv.ID, ListQuery{Before: ids[3]})
	require.NoError(t, err)
	assert.Equal(t, ids[1:3], idsOf(older))
	assert.True(t, older.HasMore)

	oldest, err := f.svc.List(ctx, f.conv.ID, ListQuery{Before: ids[1]})
	require.NoError(t, err)
	assert.Equal(t, ids[:1], idsOf(oldest))
	assert.False(t, oldest.HasMore)

	newer, err := f.svc.List(ctx, f.conv.ID, ListQuery{Since: ids[0], Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, ids[1:4], idsOf(newer), "limit clamps to the page max")
	assert.True(t, newer.HasMore)

	tail, err := f.svc.List(ctx, f.conv.ID, ListQuery{Since: ids[4]})
	require.NoError(t, err)
	assert.Empty(t, tail.Items)
	assert.False(t, tail.HasMore)

	_, err = f.svc.List(ctx, f.conv.ID, ListQuery{Before: 3, Since: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListLatestMarksRead(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	ctx := context.Background()
	f.send(t, f.alice, "one", "")
	f.send(t, f.alice, "two", "")
	require.Equal(t, 2, f.unread(t, f.admin))

	page, err := f.svc.ListLatest(ctx, f.conv.ID, f.admin.ID, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 0, f.unread(t, f.admin))

	// A cursor page is not a view of the newest messages and leaves state alone.
	f.send(t, f.alice, "three", "")
	_, err = f.svc.List(ctx, f.conv.ID, ListQuery{Since: page.Items[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.unread(t, f.admin))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	ctx := context.Background()
	last := f.send(t, f.alice, "a", "")
	last = f.send(t, f.alice, "b", "")

	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.MarkRead(ctx, f.conv.ID, f.admin.ID))
		p, err := f.convs.Participant(ctx, f.conv.ID, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, p.UnreadCount)
		assert.Equal(t, last.Message.ID, p.LastReadMessageID)
	}
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	ctx := context.Background()
	f.send(t, f.alice, "a", "")
	n, err := f.svc.MarkAllRead(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = f.svc.MarkAllRead(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	total, err := f.svc.TotalUnread(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRecomputeUnreadFixesDrift(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	ctx := context.Background()
	f.send(t, f.alice, "a", "")
	f.send(t, f.alice, "b", "")

	convID, _ := dbpkg.ParseUUID(f.conv.ID)
	adminID, _ := dbpkg.ParseUUID(f.admin.ID)
	f.store.SetUnread(convID, adminID, 7)

	drift, err := f.svc.RecomputeUnread(ctx, "")
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, UnreadDrift{ConversationID: f.conv.ID, UserID: f.admin.ID, Previous: 7, Current: 2}, drift[0])
	assert.Equal(t, 2, f.unread(t, f.admin))

	again, err := f.svc.RecomputeUnread(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestAppendStorageFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultLimits())
	boom := errors.New("connection reset")
	f.store.Fail(boom)
	_, err := f.svc.Append(context.Background(), AppendInput{ConversationID: f.conv.ID, SenderID: f.alice.ID, Text: "x"})
	assert.ErrorIs(t, err, boom)
}
