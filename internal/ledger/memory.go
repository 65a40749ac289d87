package ledger

import (
	"context"
	"sync"
)

type userKey struct {
	community, user, day string
}

type communityKey struct {
	community, day string
}

// Counters held in process memory
type MemoryStore struct {
	mu        sync.Mutex
	users     map[userKey]int64
	community map[communityKey]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[userKey]int64),
		community: make(map[communityKey]int64),
	}
}

func (m *MemoryStore) Reserve(ctx context.Context, key Key, quantity int64, limits Limits) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uk := userKey{key.CommunityID, key.UserID, key.Day}
	ck := communityKey{key.CommunityID, key.Day}
	user, community := m.users[uk], m.community[ck]

	if user+quantity > limits.UserDaily {
		return m.usage(key), &LimitError{Scope: ScopeUser, Used: user, Requested: quantity, Limit: limits.UserDaily}
	}
	if community+quantity > limits.CommunityDaily {
		return m.usage(key), &LimitError{Scope: ScopeCommunity, Used: community, Requested: quantity, Limit: limits.CommunityDaily}
	}

	m.users[uk] = user + quantity
	m.community[ck] = community + quantity
	return m.usage(key), nil
}

func (m *MemoryStore) Adjust(ctx context.Context, key Key, delta int64, limits Limits) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uk := userKey{key.CommunityID, key.UserID, key.Day}
	ck := communityKey{key.CommunityID, key.Day}
	m.users[uk] = Clamp(m.users[uk], delta, limits.UserDaily)
	m.community[ck] = Clamp(m.community[ck], delta, limits.CommunityDaily)
	return m.usage(key), nil
}

func (m *MemoryStore) Usage(ctx context.Context, communityID, userID, day string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.usage(Key{CommunityID: communityID, UserID: userID, Day: day}), nil
}

func (m *MemoryStore) usage(key Key) Usage {
	u := Usage{
		CommunityID:     key.CommunityID,
		UserID:          key.UserID,
		Day:             key.Day,
		CommunityTokens: m.community[communityKey{key.CommunityID, key.Day}],
	}
	if key.UserID != "" {
		u.UserTokens = m.users[userKey{key.CommunityID, key.UserID, key.Day}]
	}
	return u
}
