package guest

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/storage/memory"
)

// failingKV returns errors from every call.
type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage unavailable")
}
func (failingKV) Set(context.Context, string, string) error { return errors.New("storage unavailable") }
func (failingKV) Remove(context.Context, string) error      { return errors.New("storage unavailable") }

// flakyKV fails reads while failGet is set.
type flakyKV struct {
	*memory.KV
	failGet atomic.Bool
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet.Load() {
		return "", false, errors.New("storage unavailable")
	}
	return f.KV.Get(ctx, key)
}

func TestSetToken_UnreadableStorageKeepsExistingTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := &flakyKV{KV: memory.New()}
	s := NewStore(kv, nil)

	s.SetToken(ctx, "a@x.org", "o-1", "T1")
	kv.failGet.Store(true)
	s.SetToken(ctx, "b@x.org", "o-2", "T2")
	s.RemoveTokens(ctx, nil, []string{"o-1"})
	kv.failGet.Store(false)

	want := []Token{{OrderID: "o-1", Email: "a@x.org", Token: "T1"}}
	if got := s.Tokens(ctx); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestSetToken_NormalizesAndDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(memory.New(), nil)

	s.SetToken(ctx, "Foo@Bar.com", "o-1", "T1")
	s.SetToken(ctx, " foo@bar.COM ", "o-1", "T1")

	if got := s.GetAllEmails(ctx); !reflect.DeepEqual(got, []string{"foo@bar.com"}) {
		t.Fatalf("expected [foo@bar.com], got %v", got)
	}
}

func TestSetToken_KeepsOtherOrders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(memory.New(), nil)

	s.SetToken(ctx, "a@x.org", "o-1", "T1")
	s.SetToken(ctx, "b@x.org", "o-2", "T2")

	got := s.Tokens(ctx)
	want := []Token{
		{OrderID: "o-1", Email: "a@x.org", Token: "T1"},
		{OrderID: "o-2", Email: "b@x.org", Token: "T2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if tok, ok := s.GetToken(ctx, "o-2"); !ok || tok.Token != "T2" {
		t.Fatalf("expected T2, got %+v ok=%v", tok, ok)
	}
}

// Two stores over the same persistence stand in for two browser tabs.
func TestSetToken_ConcurrentWritersMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.New()
	tabA := NewStore(kv, nil)
	tabB := NewStore(kv, nil)

	tabA.SetToken(ctx, "a@x.org", "o-1", "T1")
	tabB.SetToken(ctx, "b@x.org", "o-2", "T2")
	tabA.SetToken(ctx, "a@x.org", "o-1", "T1b")

	got := tabB.Tokens(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 tokens, got %+v", got)
	}
	if got[0].Token != "T1b" {
		t.Fatalf("expected last write to win for o-1, got %q", got[0].Token)
	}
}

func TestSetToken_Parallel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(memory.New(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetToken(ctx, "same@x.org", "o-"+string(rune('a'+i)), "T")
		}(i)
	}
	wg.Wait()

	if got := len(s.Tokens(ctx)); got != 20 {
		t.Fatalf("expected 20 tokens, got %d", got)
	}
}

func TestRemoveTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		emails   []string
		orderIDs []string
		want     []string
	}{
		{name: "no_filters_is_noop", want: []string{"o-1", "o-2", "o-3"}},
		{name: "by_email_normalized", emails: []string{" A@X.org"}, want: []string{"o-2", "o-3"}},
		{name: "by_order", orderIDs: []string{"o-3"}, want: []string{"o-1", "o-2"}},
		{name: "email_or_order", emails: []string{"b@x.org"}, orderIDs: []string{"o-1"}, want: []string{"o-3"}},
		{name: "everything", emails: []string{"a@x.org", "b@x.org", "c@x.org"}, want: []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			kv := memory.New()
			s := NewStore(kv, nil)
			s.SetToken(ctx, "a@x.org", "o-1", "T1")
			s.SetToken(ctx, "b@x.org", "o-2", "T2")
			s.SetToken(ctx, "c@x.org", "o-3", "T3")
			before, _, _ := kv.Get(ctx, StorageKey)

			s.RemoveTokens(ctx, tt.emails, tt.orderIDs)

			got := []string{}
			for _, tok := range s.Tokens(ctx) {
				got = append(got, tok.OrderID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if tt.name == "no_filters_is_noop" {
				after, _, _ := kv.Get(ctx, StorageKey)
				if after != before {
					t.Fatalf("expected persisted value unchanged")
				}
			}
		})
	}
}

func TestStore_DegradesWhenStorageFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(failingKV{}, nil)

	s.SetToken(ctx, "a@x.org", "o-1", "T1")
	s.RemoveTokens(ctx, []string{"a@x.org"}, nil)

	if got := s.GetAllEmails(ctx); len(got) != 0 {
		t.Fatalf("expected no emails, got %v", got)
	}
	if _, ok := s.GetToken(ctx, "o-1"); ok {
		t.Fatal("expected no token")
	}
}

func TestStore_CorruptValueReadsAsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.New()
	_ = kv.Set(ctx, StorageKey, "{not json")
	s := NewStore(kv, nil)

	if got := s.Tokens(ctx); len(got) != 0 {
		t.Fatalf("expected empty, got %+v", got)
	}
	s.SetToken(ctx, "a@x.org", "o-1", "T1")
	if got := s.Tokens(ctx); len(got) != 1 {
		t.Fatalf("expected store to recover, got %+v", got)
	}
}

// A guest checks out as " Foo@Bar.com "; a later session lists the email.
func TestScenario_GuestEmailAcrossSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.New()

	NewStore(kv, nil).SetToken(ctx, " Foo@Bar.com ", "O", "T")

	later := NewStore(kv, nil)
	if got := later.GetAllEmails(ctx); !reflect.DeepEqual(got, []string{"foo@bar.com"}) {
		t.Fatalf("expected [foo@bar.com], got %v", got)
	}
}
