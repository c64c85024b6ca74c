package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func entry(id, result string) Entry {
	return Entry{
		GameID:     id,
		StartedAt:  time.Now().Add(-5 * time.Minute),
		FinishedAt: time.Now(),
		Result:     result,
		Method:     "checkmate",
		MoveCount:  42,
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rs, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { rs.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestSaveAndGet(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.Save(ctx, entry("g1", "white")); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := store.Get(ctx, "g1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil || got.Result != "white" || got.MoveCount != 42 {
				t.Errorf("got %+v", got)
			}

			missing, err := store.Get(ctx, "nope")
			if err != nil {
				t.Fatalf("Get missing: %v", err)
			}
			if missing != nil {
				t.Errorf("missing entry = %+v, want nil", missing)
			}
		})
	}
}

func TestRecentOrder(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, id := range []string{"a", "b", "c"} {
				if err := store.Save(ctx, entry(id, "draw")); err != nil {
					t.Fatalf("Save(%s): %v", id, err)
				}
			}

			recent, err := store.Recent(ctx, 2)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(recent) != 2 {
				t.Fatalf("len = %d, want 2", len(recent))
			}
			if recent[0].GameID != "c" || recent[1].GameID != "b" {
				t.Errorf("order = %s, %s; want c, b", recent[0].GameID, recent[1].GameID)
			}
		})
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6379/2")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Addr != "localhost:6379" || opts.Password != "secret" || opts.DB != 2 {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Error("expected error for non-redis scheme")
	}
}
