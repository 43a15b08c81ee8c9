package store

import (
	"fmt"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agent-notify/internal/model"
)

func rec(id string) model.Notification {
	return model.Notification{ID: id, Type: model.TypeTest, Title: "t" + id}
}

func ids(items []model.Notification) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func TestInsert_DedupByID(t *testing.T) {
	s := NewStore(10)

	assert.True(t, s.Insert(rec("1")))
	assert.False(t, s.Insert(rec("1")))
	assert.True(t, s.Insert(rec("2")))

	assert.Equal(t, []string{"2", "1"}, ids(s.List()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestInsert_RejectsEmptyID(t *testing.T) {
	s := NewStore(10)
	assert.False(t, s.Insert(model.Notification{}))
	assert.Equal(t, 0, s.Len())
}

func TestMerge_ReturnsOnlyNewInOrder(t *testing.T) {
	s := NewStore(10)
	s.Insert(rec("2"))

	added := s.Merge([]model.Notification{rec("1"), rec("2"), rec("3"), rec("1")})

	assert.Equal(t, []string{"1", "3"}, ids(added))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, s.UnreadCount())
}

func TestMerge_DuplicateSequences(t *testing.T) {
	s := NewStore(DefaultCapacity)
	batches := [][]string{
		{"1", "2", "3"},
		{"3", "4"},
		{"1", "4", "5", "5"},
		{},
		{"2"},
	}

	distinct := map[string]bool{}
	for _, b := range batches {
		var items []model.Notification
		for _, id := range b {
			items = append(items, rec(id))
			distinct[id] = true
		}
		s.Merge(items)
	}

	assert.Equal(t, len(distinct), s.Len())
	seen := map[string]int{}
	for _, n := range s.List() {
		seen[n.ID]++
	}
	for id, c := range seen {
		assert.Equal(t, 1, c, "id %s", id)
	}
}

func TestCapEviction_FIFOByInsertion(t *testing.T) {
	s := NewStore(DefaultCapacity)

	const n = 150
	for i := 0; i < n; i++ {
		s.Insert(rec(fmt.Sprint(i)))
	}

	require.Equal(t, DefaultCapacity, s.Len())
	list := s.List()
	assert.Equal(t, fmt.Sprint(n-1), list[0].ID)
	assert.Equal(t, fmt.Sprint(n-DefaultCapacity), list[len(list)-1].ID)
	assert.False(t, s.Contains("0"))
	assert.Equal(t, DefaultCapacity, s.UnreadCount())

	// An evicted id is new again.
	assert.True(t, s.Insert(rec("0")))
}

func TestMarkRead_Idempotent(t *testing.T) {
	s := NewStore(10)
	s.Merge([]model.Notification{rec("1"), rec("2")})

	assert.True(t, s.MarkRead("1"))
	once := s.List()
	unreadOnce := s.UnreadCount()

	assert.False(t, s.MarkRead("1"))
	assert.Equal(t, once, s.List())
	assert.Equal(t, unreadOnce, s.UnreadCount())
	assert.Equal(t, 1, s.UnreadCount())

	assert.False(t, s.MarkRead("missing"))
}

func TestReplace_UsesBackendUnreadCount(t *testing.T) {
	s := NewStore(10)
	s.Insert(rec("old"))

	read := rec("2")
	read.Read = true
	s.Replace([]model.Notification{rec("3"), read, rec("1"), rec("3")}, 7)

	assert.Equal(t, []string{"3", "2", "1"}, ids(s.List()))
	assert.Equal(t, 7, s.UnreadCount())
	assert.False(t, s.Contains("old"))
}

func TestReplace_TruncatesToCapacity(t *testing.T) {
	s := NewStore(2)
	s.Replace([]model.Notification{rec("3"), rec("2"), rec("1")}, 3)
	assert.Equal(t, []string{"3", "2"}, ids(s.List()))
}

func TestReload_KeepsRecordsInsertedDuringLoad(t *testing.T) {
	s := NewStore(10)
	s.Insert(rec("stale"))

	since := s.Revision()
	// A poll merges 42 while the history request is in flight.
	s.Insert(rec("42"))

	read := rec("2")
	read.Read = true
	s.Reload([]model.Notification{rec("3"), read, rec("1")}, 2, since)

	assert.Equal(t, []string{"42", "3", "2", "1"}, ids(s.List()))
	assert.Equal(t, 3, s.UnreadCount())
	assert.False(t, s.Contains("stale"))
}

func TestReload_HistoryCopyWins(t *testing.T) {
	s := NewStore(10)
	since := s.Revision()
	s.Insert(rec("5"))

	read := rec("5")
	read.Read = true
	s.Reload([]model.Notification{read}, 0, since)

	got, ok := s.Get("5")
	require.True(t, ok)
	assert.True(t, got.Read)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
}

func TestReload_KeptRecordsNotKeptTwice(t *testing.T) {
	s := NewStore(10)
	since := s.Revision()
	s.Insert(rec("9"))

	s.Reload(nil, 0, since)
	assert.Equal(t, []string{"9"}, ids(s.List()))

	// A second load requested after 9 arrived drops it like any record.
	s.Reload([]model.Notification{rec("1")}, 1, s.Revision())
	assert.Equal(t, []string{"1"}, ids(s.List()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestSeed_OnlyFillsUnwrittenStore(t *testing.T) {
	s := NewStore(10)
	assert.True(t, s.Seed([]model.Notification{rec("1")}, 1))
	assert.False(t, s.Seed([]model.Notification{rec("2")}, 1))
	assert.Equal(t, []string{"1"}, ids(s.List()))

	polled := NewStore(10)
	polled.Insert(rec("42"))
	assert.False(t, polled.Seed([]model.Notification{rec("1")}, 1))
	assert.Equal(t, []string{"42"}, ids(polled.List()))

	// An empty history load still counts as written.
	loaded := NewStore(10)
	loaded.Replace(nil, 0)
	assert.False(t, loaded.Seed([]model.Notification{rec("1")}, 1))
	assert.Equal(t, 0, loaded.Len())
}

func TestMarkAllRead_ZeroesCounter(t *testing.T) {
	s := NewStore(10)
	s.Replace([]model.Notification{rec("1"), rec("2")}, 12)

	s.MarkAllRead()

	assert.Equal(t, 0, s.UnreadCount())
	for _, n := range s.List() {
		assert.True(t, n.Read)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(10)
	s.Merge([]model.Notification{rec("1"), rec("2")})

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	assert.True(t, s.Insert(rec("1")))
}

func TestOnChange(t *testing.T) {
	s := NewStore(10)
	calls := 0
	s.OnChange(func() { calls++ })

	s.Insert(rec("1"))
	s.Insert(rec("1"))
	s.MarkRead("1")
	s.MarkRead("1")
	s.Clear()

	assert.Equal(t, 3, calls)
}

func TestConcurrentInsert_SingleWinner(t *testing.T) {
	s := NewStore(10)

	var (
		wg   gosync.WaitGroup
		mu   gosync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Insert(rec("42")) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}
