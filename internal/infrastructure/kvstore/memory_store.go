package kvstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/errors"
)

// MemoryStore implements Store with in-process maps. It backs unit tests
// and local development runs where no Redis is available; the contract
// matches RedisStore, including lazy expiry on read and a background
// janitor that sweeps expired entries.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	zsets      map[string]map[string]float64
	sets       map[string]map[string]struct{}
	serializer *Serializer
	observer   Observer
	logger     *zap.Logger

	janitorStop chan struct{}
	janitorOnce sync.Once
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore(serializer *Serializer, observer Observer, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if serializer == nil {
		serializer = NewSerializer(0)
	}
	return &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		zsets:       make(map[string]map[string]float64),
		sets:        make(map[string]map[string]struct{}),
		serializer:  serializer,
		observer:    observer,
		logger:      logger,
		janitorStop: make(chan struct{}),
	}
}

// StartJanitor launches the background sweep of expired entries.
func (s *MemoryStore) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.janitorStop:
				return
			case <-ticker.C:
				s.sweepExpired()
			}
		}
	}()
}

func (s *MemoryStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Swept expired entries", zap.Int("count", removed))
	}
}

func (s *MemoryStore) observe(op, key string, hit bool, start time.Time, err error) {
	if s.observer != nil {
		s.observer.Observe(op, key, hit, time.Since(start), err)
	}
}

// ============================================================================
// STRING / COUNTER OPERATIONS
// ============================================================================

func (s *MemoryStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := s.GetRaw(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := s.serializer.Decode(raw, dest); err != nil {
		s.logger.Warn("Cached payload failed to decode, treating as miss",
			zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) GetRaw(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.expired(time.Now()) {
		delete(s.entries, key)
		ok = false
	}
	var raw string
	if ok {
		raw = e.value
	}
	s.mu.Unlock()
	s.observe("get", key, ok, start, nil)
	return raw, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	encoded, err := s.serializer.Encode(value)
	if err != nil {
		return err
	}
	e := &memoryEntry{value: encoded}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	s.observe("set", key, true, start, nil)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	s.mu.Lock()
	var deleted int64
	for _, key := range keys {
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			deleted++
		}
		if _, ok := s.zsets[key]; ok {
			delete(s.zsets, key)
			deleted++
		}
		if _, ok := s.sets[key]; ok {
			delete(s.sets, key)
			deleted++
		}
	}
	s.mu.Unlock()
	if len(keys) > 0 {
		s.observe("delete", keys[0], true, start, nil)
	}
	return deleted, nil
}

func (s *MemoryStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	start := time.Now()
	s.mu.Lock()
	var deleted int64
	for key := range s.entries {
		if matchPattern(key, pattern) {
			delete(s.entries, key)
			deleted++
		}
	}
	for key := range s.zsets {
		if matchPattern(key, pattern) {
			delete(s.zsets, key)
			deleted++
		}
	}
	for key := range s.sets {
		if matchPattern(key, pattern) {
			delete(s.sets, key)
			deleted++
		}
	}
	s.mu.Unlock()
	s.observe("delete_pattern", pattern, true, start, nil)
	return deleted, nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := s.GetRaw(ctx, key)
	return found, err
}

func (s *MemoryStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.entries[key]; ok && !e.expired(time.Now()) {
		n, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			s.observe("increment", key, false, start, nil)
			return 0, errors.NewSerialization("kvstore.increment", err)
		}
		current = n
	}
	current += delta
	if e, ok := s.entries[key]; ok {
		e.value = strconv.FormatInt(current, 10)
	} else {
		s.entries[key] = &memoryEntry{value: strconv.FormatInt(current, 10)}
	}
	s.observe("increment", key, true, start, nil)
	return current, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		if ttl > 0 {
			e.expiresAt = time.Now().Add(ttl)
		} else {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return time.Until(e.expiresAt), nil
}

func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var keys []string
	for key, e := range s.entries {
		if !e.expired(now) && matchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	for key := range s.zsets {
		if matchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	for key := range s.sets {
		if matchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	start := time.Now()
	s.mu.Lock()
	now := time.Now()
	results := make([]*string, len(keys))
	anyHit := false
	for i, key := range keys {
		if e, ok := s.entries[key]; ok {
			if e.expired(now) {
				delete(s.entries, key)
				continue
			}
			val := e.value
			results[i] = &val
			anyHit = true
		}
	}
	s.mu.Unlock()
	if len(keys) > 0 {
		s.observe("mget", keys[0], anyHit, start, nil)
	}
	return results, nil
}

func (s *MemoryStore) MSet(ctx context.Context, values map[string]any, ttl time.Duration) error {
	for k, v := range values {
		if err := s.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// SORTED-SET OPERATIONS
// ============================================================================

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	zset, ok := s.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] = score
	return nil
}

func (s *MemoryStore) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zset, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, ok := zset[m]; ok {
			delete(zset, m)
			removed++
		}
	}
	if len(zset) == 0 {
		delete(s.zsets, key)
	}
	return removed, nil
}

func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zset, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := zset[member]
	return score, ok, nil
}

func (s *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members := s.sortedMembers(key)
	return sliceRange(members, start, stop), nil
}

func (s *MemoryStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members := s.sortedMembers(key)
	for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
		members[i], members[j] = members[j], members[i]
	}
	return sliceRange(members, start, stop), nil
}

func (s *MemoryStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	withScores, err := s.ZRangeByScoreWithScores(ctx, key, min, max)
	if err != nil {
		return nil, err
	}
	members := make([]string, len(withScores))
	for i, zm := range withScores {
		members[i] = zm.Member
	}
	return members, nil
}

func (s *MemoryStore) ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]ZMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []ZMember
	for member, score := range s.zsets[key] {
		if score >= min && score <= max {
			result = append(result, ZMember{Member: member, Score: score})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score < result[j].Score
		}
		return result[i].Member < result[j].Member
	})
	return result, nil
}

func (s *MemoryStore) ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zset, ok := s.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] += incr
	return zset[member], nil
}

func (s *MemoryStore) sortedMembers(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zset := s.zsets[key]
	members := make([]ZMember, 0, len(zset))
	for m, score := range zset {
		members = append(members, ZMember{Member: m, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Member
	}
	return out
}

func sliceRange(members []string, start, stop int64) []string {
	n := int64(len(members))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	return members[start : stop+1]
}

// ============================================================================
// SET OPERATIONS
// ============================================================================

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var added int64
	for _, m := range members {
		if _, ok := set[m]; !ok {
			set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, ok := set[m]; ok {
			delete(set, m)
			removed++
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return removed, nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[key]
	if !ok {
		return false, nil
	}
	_, isMember := set[member]
	return isMember, nil
}

func (s *MemoryStore) SCard(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[key])), nil
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.janitorOnce.Do(func() {
		close(s.janitorStop)
	})
	return nil
}

// matchPattern implements Redis-style glob matching with '*' wildcards.
func matchPattern(str, pattern string) bool {
	if pattern == "*" {
		return true
	}
	// Greedy segment matching: every literal segment between wildcards
	// must appear in order.
	var segments []string
	seg := ""
	for _, r := range pattern {
		if r == '*' {
			if seg != "" {
				segments = append(segments, seg)
				seg = ""
			}
			segments = append(segments, "*")
		} else {
			seg += string(r)
		}
	}
	if seg != "" {
		segments = append(segments, seg)
	}

	pos := 0
	anchored := true // next literal must match at pos exactly
	for i, segment := range segments {
		if segment == "*" {
			anchored = false
			continue
		}
		if anchored {
			if len(str)-pos < len(segment) || str[pos:pos+len(segment)] != segment {
				return false
			}
			pos += len(segment)
			continue
		}
		// Last literal segment with a preceding '*' must match the suffix.
		if i == len(segments)-1 {
			if len(str)-pos < len(segment) {
				return false
			}
			return str[len(str)-len(segment):] == segment
		}
		idx := indexFrom(str, segment, pos)
		if idx < 0 {
			return false
		}
		pos = idx + len(segment)
		anchored = true
	}
	if anchored {
		return pos == len(str)
	}
	return true
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	for i := from; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
