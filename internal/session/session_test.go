package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	xerrors "WalletChat/internal/errors"
)

func newSession(userID string) *Session {
	return &Session{
		UserID: userID,
		Email:  userID + "@example.com",
		Tokens: Tokens{AuthToken: "auth-" + userID, RefreshToken: "refresh", DeviceToken: "device"},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "alice"); !xerrors.HasCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Put(ctx, &Session{UserID: "alice"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("session without auth token must be rejected, got %v", err)
	}

	if err := store.Put(ctx, newSession("alice")); err != nil {
		t.Fatalf("Put alice: %v", err)
	}
	if err := store.Put(ctx, newSession("bob")); err != nil {
		t.Fatalf("Put bob: %v", err)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Authenticated() || got.Tokens.AuthToken != "auth-alice" || got.AuthenticatedAt.IsZero() {
		t.Fatalf("unexpected session: %+v", got)
	}

	deleted, err := store.Delete(ctx, "alice")
	if err != nil || !deleted {
		t.Fatalf("Delete alice: %v %v", deleted, err)
	}
	if sess, err := Lookup(ctx, store, "alice"); err != nil || sess != nil {
		t.Fatalf("alice should be logged out, got %+v %v", sess, err)
	}
	if sess, err := Lookup(ctx, store, "bob"); err != nil || !sess.Authenticated() {
		t.Fatalf("logging out alice must not affect bob: %+v %v", sess, err)
	}
	if deleted, _ := store.Delete(ctx, "alice"); deleted {
		t.Fatalf("second delete should report false")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_ = store.Put(ctx, newSession("alice"))

	got, _ := store.Get(ctx, "alice")
	got.Tokens.AuthToken = ""
	again, _ := store.Get(ctx, "alice")
	if !again.Authenticated() {
		t.Fatalf("mutating a returned session must not change the store")
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Put(ctx, newSession("alice"))
	now = now.Add(59 * time.Minute)
	if _, err := store.Get(ctx, "alice"); err != nil {
		t.Fatalf("session should still be valid: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "alice"); err != ErrNotFound {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStoreConcurrentUsers(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = store.Put(ctx, newSession(id))
			_, _ = store.Get(ctx, id)
			_, _ = store.Delete(ctx, id)
		}(uuid.NewString())
	}
	wg.Wait()
}

func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("WALLETCHAT_TEST_REDIS")
	if addr == "" {
		t.Skip("WALLETCHAT_TEST_REDIS not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	store := NewRedisStore(client, "walletchat-test-"+uuid.NewString(), WithRedisTTL(time.Minute), WithOwnedClient())
	defer store.Close()
	exerciseStore(t, store)
}
