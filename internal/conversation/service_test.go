package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	dbpkg "github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/db/memstore"
	"github.com/marketline/marketchat/internal/db/sqlc"
	"github.com/marketline/marketchat/internal/identity"
)

type fixture struct {
	store *memstore.Store
	users *identity.Service
	svc   *Service
	admin identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	users := identity.NewService(nil, store)
	admin, err := users.EnsureAdmin(context.Background(), identity.Claims{Username: "support", DisplayName: "Support Team"})
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	return &fixture{store: store, users: users, svc: NewService(nil, store), admin: admin}
}

func (f *fixture) user(t *testing.T, name string) identity.User {
	t.Helper()
	u, err := f.users.Ensure(context.Background(), identity.Claims{Ref: name, Username: name, DisplayName: name})
	if err != nil {
		t.Fatalf("ensure %s: %v", name, err)
	}
	return u
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := "6F1C2D3E-4A5B-4C6D-8E7F-001122334455"
	b := "0a1b2c3d-4e5f-4a6b-8c7d-8e9fa0b1c2d3"
	if PairKey(a, b) != PairKey(b, a) {
		t.Fatalf("pair key depends on order")
	}
	if PairKey(a, b) != PairKey(" "+a, b) {
		t.Fatalf("pair key should ignore case and surrounding space")
	}
	if PairKey(a, b) == PairKey(a, a) {
		t.Fatalf("different pairs share a key")
	}
	if DirectConversationID(PairKey(a, b)) != DirectConversationID(PairKey(b, a)) {
		t.Fatalf("direct id not deterministic")
	}
}

func TestGetOrCreateSupportConcurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	alice := f.user(t, "alice")

	const workers = 10
	ids := make([]string, workers)
	created := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := f.svc.GetOrCreateSupport(context.Background(), alice, f.admin)
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = conv.ID
			created[i] = conv.Created
		}(i)
	}
	wg.Wait()

	creators := 0
	for _, c := range created {
		if c {
			creators++
		}
	}
	if creators != 1 {
		t.Fatalf("expected exactly one caller to report the insert, got %d", creators)
	}

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers saw different conversations: %v", ids)
		}
	}
	if n := f.store.ConversationCount(KindSupport); n != 1 {
		t.Fatalf("expected exactly one support conversation, got %d", n)
	}
	parts, err := f.svc.Participants(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	admins := 0
	for _, p := range parts {
		if p.Role == RoleAdmin {
			admins++
			if p.UserID != f.admin.ID {
				t.Fatalf("admin participant is not the singleton admin")
			}
		}
	}
	if len(parts) != 2 || admins != 1 {
		t.Fatalf("unexpected participants: %+v", parts)
	}
}

func TestGetOrCreateDirect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	ab, err := f.svc.GetOrCreateDirect(ctx, alice, bob)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	ba, err := f.svc.GetOrCreateDirect(ctx, bob, alice)
	if err != nil {
		t.Fatalf("direct reversed: %v", err)
	}
	if ab.ID != ba.ID {
		t.Fatalf("pair order produced different conversations")
	}
	if !ab.Created || ba.Created {
		t.Fatalf("only the first lookup creates: first=%v second=%v", ab.Created, ba.Created)
	}
	if want := DirectConversationID(PairKey(alice.ID, bob.ID)).String(); ab.ID != want {
		t.Fatalf("direct id %s, want derived %s", ab.ID, want)
	}
	if ab.Kind != KindDirect {
		t.Fatalf("unexpected kind %q", ab.Kind)
	}

	if _, err := f.svc.GetOrCreateDirect(ctx, alice, alice); !errors.Is(err, ErrSelfPair) {
		t.Fatalf("expected ErrSelfPair, got %v", err)
	}
	if _, err := f.svc.GetOrCreateDirect(ctx, alice, f.admin); !errors.Is(err, ErrAdminPair) {
		t.Fatalf("expected ErrAdminPair, got %v", err)
	}
}

func TestGetOrCreateSupportAdoptsLegacyRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	legacyID := dbpkg.UUIDFrom(uuid.New())
	f.store.InsertLegacyConversation(legacyID, KindSupport)
	aliceID, _ := dbpkg.ParseUUID(alice.ID)
	if err := f.store.UpsertParticipant(ctx, sqlc.UpsertParticipantParams{ConversationID: legacyID, UserID: aliceID, Role: RoleUser}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	conv, err := f.svc.GetOrCreateSupport(ctx, alice, f.admin)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if conv.ID != dbpkg.UUIDToString(legacyID) {
		t.Fatalf("expected legacy conversation to be adopted")
	}
	if conv.PairKey != PairKey(alice.ID, f.admin.ID) {
		t.Fatalf("pair key not backfilled")
	}
	p, err := f.svc.Participant(ctx, conv.ID, f.admin.ID)
	if err != nil || p.Role != RoleAdmin {
		t.Fatalf("admin not attached: %+v %v", p, err)
	}
	if n := f.store.ConversationCount(KindSupport); n != 1 {
		t.Fatalf("expected one support conversation, got %d", n)
	}
}

func TestListForUserPutsSupportFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	direct, err := f.svc.GetOrCreateDirect(ctx, alice, bob)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}

	items, err := f.svc.ListForUser(ctx, alice, f.admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(items))
	}
	if items[0].Kind != KindSupport {
		t.Fatalf("support conversation must come first: %+v", items)
	}
	if items[0].Counterparty.ID != f.admin.ID || items[0].Counterparty.DisplayName != "Support Team" {
		t.Fatalf("support row should carry the admin profile: %+v", items[0].Counterparty)
	}
	if items[1].ID != direct.ID || items[1].Counterparty.Username != "bob" {
		t.Fatalf("unexpected direct row: %+v", items[1])
	}
}

func TestListForAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	for _, u := range []identity.User{alice, bob} {
		if _, err := f.svc.GetOrCreateSupport(ctx, u, f.admin); err != nil {
			t.Fatalf("support: %v", err)
		}
	}
	if _, err := f.svc.GetOrCreateDirect(ctx, alice, bob); err != nil {
		t.Fatalf("direct: %v", err)
	}

	all, err := f.svc.ListForAdmin(ctx, f.admin, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin should only see support conversations, got %d", len(all))
	}
	viaUser, err := f.svc.ListForUser(ctx, f.admin, f.admin)
	if err != nil || len(viaUser) != 2 {
		t.Fatalf("admin listing through ListForUser: %d %v", len(viaUser), err)
	}

	onlyBob, err := f.svc.ListForAdmin(ctx, f.admin, bob.ID)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(onlyBob) != 1 || onlyBob[0].Counterparty.ID != bob.ID {
		t.Fatalf("unexpected filtered result: %+v", onlyBob)
	}
}

func TestParticipantErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	mallory := f.user(t, "mallory")
	conv, err := f.svc.GetOrCreateSupport(ctx, alice, f.admin)
	if err != nil {
		t.Fatalf("support: %v", err)
	}
	if _, err := f.svc.Participant(ctx, conv.ID, mallory.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := f.svc.Get(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}
