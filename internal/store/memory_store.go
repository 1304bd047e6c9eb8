package store

import (
	"context"
	"sync"

	"confessly/pkg/domain"
)

// MemoryStore keeps all records in-process. Update is serialized by a
// single mutex, which trivially satisfies the snapshot-and-commit
// contract; it exists for tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	confessions map[string]domain.Confession
	reactions   map[string]domain.Reaction // key: confessionID + "_" + userID
	reports     map[string]domain.Report   // key: confessionID + "_" + userID
	usedTokens  map[string]domain.UsedToken
	userOrder   []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		confessions: make(map[string]domain.Confession),
		reactions:   make(map[string]domain.Reaction),
		reports:     make(map[string]domain.Report),
		usedTokens:  make(map[string]domain.UsedToken),
	}
}

func pairKey(confessionID, userID string) string {
	return confessionID + "_" + userID
}

// memTx stages writes in overlays so an aborted callback leaves the base
// maps untouched. Deletions are tombstoned.
type memTx struct {
	s *MemoryStore

	users           map[string]domain.User
	confessions     map[string]domain.Confession
	reactions       map[string]domain.Reaction
	reactionDeletes map[string]bool
	reports         map[string]domain.Report
	usedTokens      map[string]domain.UsedToken
}

func newMemTx(s *MemoryStore) *memTx {
	return &memTx{
		s:               s,
		users:           make(map[string]domain.User),
		confessions:     make(map[string]domain.Confession),
		reactions:       make(map[string]domain.Reaction),
		reactionDeletes: make(map[string]bool),
		reports:         make(map[string]domain.Report),
		usedTokens:      make(map[string]domain.UsedToken),
	}
}

// Update runs fn atomically. With a single writer lock there are no
// conflicts to retry; fn errors abort with nothing applied.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := newMemTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn against the current state without applying writes.
func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newMemTx(s))
}

// GetConfession reads a confession outside a transaction.
func (s *MemoryStore) GetConfession(_ context.Context, id string) (domain.Confession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.confessions[id]
	return cloneConfession(c), ok, nil
}

// ListPushableUsers returns users with a push token in insertion order.
func (s *MemoryStore) ListPushableUsers(_ context.Context, limit int) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		u, ok := s.users[id]
		if !ok || u.PushToken == "" {
			continue
		}
		res = append(res, u)
		if limit > 0 && len(res) >= limit {
			break
		}
	}
	return res, nil
}

func (tx *memTx) commit() {
	for id, u := range tx.users {
		if _, exists := tx.s.users[id]; !exists {
			tx.s.userOrder = append(tx.s.userOrder, id)
		}
		tx.s.users[id] = u
	}
	for id, c := range tx.confessions {
		tx.s.confessions[id] = c
	}
	for key := range tx.reactionDeletes {
		delete(tx.s.reactions, key)
	}
	for key, r := range tx.reactions {
		tx.s.reactions[key] = r
	}
	for key, r := range tx.reports {
		tx.s.reports[key] = r
	}
	for token, t := range tx.usedTokens {
		tx.s.usedTokens[token] = t
	}
}

func (tx *memTx) GetUser(id string) (domain.User, bool, error) {
	if u, ok := tx.users[id]; ok {
		return u, true, nil
	}
	u, ok := tx.s.users[id]
	return u, ok, nil
}

func (tx *memTx) SaveUser(user domain.User) error {
	tx.users[user.ID] = user
	return nil
}

func (tx *memTx) GetConfession(id string) (domain.Confession, bool, error) {
	if c, ok := tx.confessions[id]; ok {
		return cloneConfession(c), true, nil
	}
	c, ok := tx.s.confessions[id]
	return cloneConfession(c), ok, nil
}

func (tx *memTx) SaveConfession(c domain.Confession) error {
	tx.confessions[c.ID] = cloneConfession(c)
	return nil
}

func (tx *memTx) GetReaction(confessionID, userID string) (domain.Reaction, bool, error) {
	key := pairKey(confessionID, userID)
	if tx.reactionDeletes[key] {
		return domain.Reaction{}, false, nil
	}
	if r, ok := tx.reactions[key]; ok {
		return r, true, nil
	}
	r, ok := tx.s.reactions[key]
	return r, ok, nil
}

func (tx *memTx) SaveReaction(r domain.Reaction) error {
	key := pairKey(r.ConfessionID, r.UserID)
	delete(tx.reactionDeletes, key)
	tx.reactions[key] = r
	return nil
}

func (tx *memTx) DeleteReaction(confessionID, userID string) error {
	key := pairKey(confessionID, userID)
	delete(tx.reactions, key)
	tx.reactionDeletes[key] = true
	return nil
}

func (tx *memTx) HasReport(confessionID, userID string) (bool, error) {
	key := pairKey(confessionID, userID)
	if _, ok := tx.reports[key]; ok {
		return true, nil
	}
	_, ok := tx.s.reports[key]
	return ok, nil
}

func (tx *memTx) SaveReport(r domain.Report) error {
	tx.reports[pairKey(r.ConfessionID, r.ReporterID)] = r
	return nil
}

func (tx *memTx) HasUsedToken(token string) (bool, error) {
	if _, ok := tx.usedTokens[token]; ok {
		return true, nil
	}
	_, ok := tx.s.usedTokens[token]
	return ok, nil
}

func (tx *memTx) SaveUsedToken(t domain.UsedToken) error {
	tx.usedTokens[t.Token] = t
	return nil
}

// cloneConfession copies the counts map so callers cannot mutate shared
// state behind the lock.
func cloneConfession(c domain.Confession) domain.Confession {
	if c.ReactionCounts == nil {
		return c
	}
	counts := make(map[domain.ReactionKind]int, len(c.ReactionCounts))
	for k, v := range c.ReactionCounts {
		counts[k] = v
	}
	c.ReactionCounts = counts
	return c
}
