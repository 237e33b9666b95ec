// Package guest persists the tokens that let a guest contributor manage an
// order without signing in.
//
// All tokens live under one persistence key as a JSON object keyed by order
// id. Every write re-reads and merges the persisted map, so concurrent
// writers only ever replace the entry for their own order. Persistence
// failures never surface to callers: reads degrade to an empty map and writes
// become no-ops, because guest checkout must keep working without storage.
// A write is also skipped when the map could not be read, so an outage never
// replaces stored tokens with a partial map. An undecodable value is dropped.
package guest

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// StorageKey is the persistence key holding the token map.
const StorageKey = "GuestTokens"

// Persistence is a string key-value store.
type Persistence interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Token is one persisted guest token.
type Token struct {
	OrderID string `json:"-"`
	Email   string `json:"email"`
	Token   string `json:"token"`
}

// Store reads and writes guest tokens through a Persistence.
type Store struct {
	p   Persistence
	log *zap.Logger
	mu  sync.Mutex
}

// NewStore returns a Store over p. A nil logger disables logging.
func NewStore(p Persistence, log *zap.Logger) *Store {
	if p == nil {
		panic("guest.NewStore: nil persistence")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{p: p, log: log}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetToken records token for orderID. The email is normalized first and
// entries for other orders are preserved.
func (s *Store) SetToken(ctx context.Context, email, orderID, token string) {
	if orderID == "" || token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, ok := s.load(ctx)
	if !ok {
		s.log.Warn("guest token not saved", zap.String("order", orderID))
		return
	}
	tokens[orderID] = Token{Email: NormalizeEmail(email), Token: token}
	s.save(ctx, tokens)
}

// GetToken returns the token stored for orderID.
func (s *Store) GetToken(ctx context.Context, orderID string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, _ := s.load(ctx)
	t, ok := tokens[orderID]
	if !ok {
		return Token{}, false
	}
	t.OrderID = orderID
	return t, true
}

// Tokens returns every stored token ordered by order id.
func (s *Store) Tokens(ctx context.Context) []Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, _ := s.load(ctx)
	out := make([]Token, 0, len(tokens))
	for id, t := range tokens {
		t.OrderID = id
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Token) int { return strings.Compare(a.OrderID, b.OrderID) })
	return out
}

// GetAllEmails returns the distinct normalized emails across all tokens,
// sorted.
func (s *Store) GetAllEmails(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, _ := s.load(ctx)
	seen := make(map[string]struct{})
	for _, t := range tokens {
		if t.Email == "" {
			continue
		}
		seen[NormalizeEmail(t.Email)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// RemoveTokens deletes entries whose email is in emails or whose order id is
// in orderIDs. With both lists empty nothing is removed.
func (s *Store) RemoveTokens(ctx context.Context, emails, orderIDs []string) {
	if len(emails) == 0 && len(orderIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byEmail := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		byEmail[NormalizeEmail(e)] = struct{}{}
	}
	byOrder := make(map[string]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		byOrder[id] = struct{}{}
	}

	tokens, ok := s.load(ctx)
	if !ok {
		return
	}
	removed := 0
	for id, t := range tokens {
		_, emailHit := byEmail[NormalizeEmail(t.Email)]
		_, orderHit := byOrder[id]
		if emailHit || orderHit {
			delete(tokens, id)
			removed++
		}
	}
	if removed == 0 {
		return
	}
	if len(tokens) == 0 {
		if err := s.p.Remove(ctx, StorageKey); err != nil {
			s.log.Warn("remove guest tokens", zap.Error(err))
		}
		return
	}
	s.save(ctx, tokens)
}

// load returns the persisted tokens. It reports false when the persistence
// could not be read; callers must not write back in that case.
func (s *Store) load(ctx context.Context) (map[string]Token, bool) {
	tokens := make(map[string]Token)
	raw, found, err := s.p.Get(ctx, StorageKey)
	if err != nil {
		s.log.Warn("read guest tokens", zap.Error(err))
		return tokens, false
	}
	if !found || raw == "" {
		return tokens, true
	}
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		s.log.Warn("decode guest tokens", zap.Error(err))
		return make(map[string]Token), true
	}
	return tokens, true
}

func (s *Store) save(ctx context.Context, tokens map[string]Token) {
	raw, err := json.Marshal(tokens)
	if err != nil {
		s.log.Warn("encode guest tokens", zap.Error(err))
		return
	}
	if err := s.p.Set(ctx, StorageKey, string(raw)); err != nil {
		s.log.Warn("write guest tokens", zap.Error(err))
	}
}
