package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rushteam/recserve/core"
)

// MemoryStore 是内存实现的 ScanStore，用于测试/开发/原型。
// 支持 TTL（过期时间），但进程重启后数据丢失。
//
// Scan 基于有序 key 索引。游标是不透明的句柄，指向上一页最后返回的 key，
// 下一页从该 key 之后继续，因此索引压缩或插入都不会导致漏扫，最多重复返回。
// 未知或过期的游标从前缀起点重新扫描。
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]*entry
	index []string // 有序 key 索引，可能包含已删除的 key
	clean *time.Ticker
	done  chan struct{}
	once  sync.Once

	cursorMu   sync.Mutex
	cursors    map[uint64]scanCursor
	nextCursor uint64
}

// scanCursor 记录一次扫描的位置。
type scanCursor struct {
	after   string
	created time.Time
}

// cursorTTL 之后未继续的扫描游标在后台清理时丢弃。
const cursorTTL = time.Minute

type entry struct {
	value  []byte
	expire time.Time // 零值表示不过期
}

func (e *entry) expired(now time.Time) bool {
	return !e.expire.IsZero() && now.After(e.expire)
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:    make(map[string]*entry),
		cursors: make(map[uint64]scanCursor),
		clean:   time.NewTicker(10 * time.Second),
		done:    make(chan struct{}),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, core.ErrStoreNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expire = time.Now().Add(ttl)
	}
	if _, ok := m.data[key]; !ok {
		m.insertIndex(key)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := time.Now()
	for _, k := range keys {
		e, ok := m.data[k]
		if !ok {
			continue
		}
		if !e.expired(now) {
			n++
		}
		delete(m.data, k)
	}
	return n, nil
}

func (m *MemoryStore) Scan(ctx context.Context, cursor uint64, prefix string, count int64) ([]string, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		count = 10
	}

	after, resume := m.takeCursor(cursor)

	m.mu.RLock()
	pos := sort.SearchStrings(m.index, prefix)
	if resume && after >= prefix {
		pos = sort.SearchStrings(m.index, after)
		if pos < len(m.index) && m.index[pos] == after {
			pos++
		}
	}

	now := time.Now()
	keys := make([]string, 0, count)
	last := ""
	for ; pos < len(m.index) && int64(len(keys)) < count; pos++ {
		k := m.index[pos]
		if !strings.HasPrefix(k, prefix) {
			break
		}
		last = k
		if e, ok := m.data[k]; ok && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	more := pos < len(m.index) && strings.HasPrefix(m.index[pos], prefix)
	m.mu.RUnlock()

	if !more {
		return keys, 0, nil
	}
	return keys, m.saveCursor(last), nil
}

// takeCursor 取出并作废一个游标。cursor 为 0 或未知时 resume 为 false。
func (m *MemoryStore) takeCursor(cursor uint64) (after string, resume bool) {
	if cursor == 0 {
		return "", false
	}
	m.cursorMu.Lock()
	defer m.cursorMu.Unlock()
	c, ok := m.cursors[cursor]
	if !ok {
		return "", false
	}
	delete(m.cursors, cursor)
	return c.after, true
}

func (m *MemoryStore) saveCursor(after string) uint64 {
	m.cursorMu.Lock()
	defer m.cursorMu.Unlock()
	m.nextCursor++
	if m.nextCursor == 0 {
		m.nextCursor = 1
	}
	m.cursors[m.nextCursor] = scanCursor{after: after, created: time.Now()}
	return m.nextCursor
}

func (m *MemoryStore) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]*entry)
	m.index = nil
	return nil
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

// insertIndex 必须在持有写锁时调用。
func (m *MemoryStore) insertIndex(key string) {
	i := sort.SearchStrings(m.index, key)
	if i < len(m.index) && m.index[i] == key {
		return
	}
	m.index = append(m.index, "")
	copy(m.index[i+1:], m.index[i:])
	m.index[i] = key
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.clean.C:
			m.compact()
			m.expireCursors(time.Now())
		case <-m.done:
			return
		}
	}
}

// compact 删除过期数据并压缩索引。
func (m *MemoryStore) compact() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	live := m.index[:0]
	for _, k := range m.index {
		e, ok := m.data[k]
		if !ok {
			continue
		}
		if e.expired(now) {
			delete(m.data, k)
			continue
		}
		live = append(live, k)
	}
	m.index = live
}

// expireCursors 丢弃长时间未继续的扫描游标。
func (m *MemoryStore) expireCursors(now time.Time) {
	m.cursorMu.Lock()
	defer m.cursorMu.Unlock()
	for id, c := range m.cursors {
		if now.Sub(c.created) > cursorTTL {
			delete(m.cursors, id)
		}
	}
}

// 确保 MemoryStore 实现了 core.ScanStore 接口
var _ core.ScanStore = (*MemoryStore)(nil)
