// ABOUTME: Priority queue of waiting conversations awaiting agent assignment
// ABOUTME: Orders by priority weight, then arrival time, then insertion sequence

package queue

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// Entry is a waiting conversation's position in the queue. Entries exist
// only while the conversation status is waiting.
type Entry struct {
	ConversationID string
	Weight         int // higher drains first
	Department     string
	EnqueuedAt     time.Time

	seq   uint64 // insertion order, breaks exact-time ties
	index int    // heap index, maintained by the heap interface
}

// Queue is a thread-safe priority queue of waiting conversations.
// Drain order is deterministic: highest weight first, then earliest
// EnqueuedAt, then insertion order. Within one priority band this is FIFO.
type Queue struct {
	mu      sync.Mutex
	entries entryHeap
	byID    map[string]*Entry
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		byID: make(map[string]*Entry),
	}
}

// Push adds a conversation to the queue. If the conversation is already
// queued the existing entry is left untouched and Push reports false.
func (q *Queue) Push(conversationID string, weight int, department string, enqueuedAt time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[conversationID]; ok {
		return false
	}

	e := &Entry{
		ConversationID: conversationID,
		Weight:         weight,
		Department:     department,
		EnqueuedAt:     enqueuedAt,
		seq:            q.nextSeq,
	}
	q.nextSeq++
	q.byID[conversationID] = e
	heap.Push(&q.entries, e)
	return true
}

// Pop removes and returns the highest-priority entry, or nil if empty.
func (q *Queue) Pop() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.entries).(*Entry)
	delete(q.byID, e.ConversationID)
	return e
}

// Peek returns the highest-priority entry without removing it, or nil.
func (q *Queue) Peek() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries.Len() == 0 {
		return nil
	}
	cp := *q.entries[0]
	return &cp
}

// Remove takes a conversation out of the queue regardless of position.
// Reports whether an entry was removed.
func (q *Queue) Remove(conversationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[conversationID]
	if !ok {
		return false
	}
	heap.Remove(&q.entries, e.index)
	delete(q.byID, conversationID)
	return true
}

// Contains reports whether a conversation is queued.
func (q *Queue) Contains(conversationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.byID[conversationID]
	return ok
}

// Len returns the number of queued conversations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// DepartmentLen returns the number of queued conversations for a department.
func (q *Queue) DepartmentLen(department string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.entries {
		if e.Department == department {
			n++
		}
	}
	return n
}

// DepartmentCounts returns the queue size per department.
func (q *Queue) DepartmentCounts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range q.entries {
		counts[e.Department]++
	}
	return counts
}

// Position returns the 1-based drain position of a conversation, or 0 if it
// is not queued.
func (q *Queue) Position(conversationID string) int {
	for i, e := range q.Ordered() {
		if e.ConversationID == conversationID {
			return i + 1
		}
	}
	return 0
}

// Ordered returns a snapshot of all entries in drain order. The snapshot is
// safe to iterate while the queue keeps changing; the router sweep walks it
// without holding the queue lock.
func (q *Queue) Ordered() []Entry {
	q.mu.Lock()
	snapshot := make([]Entry, 0, q.entries.Len())
	for _, e := range q.entries {
		snapshot = append(snapshot, *e)
	}
	q.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].less(&snapshot[j])
	})
	return snapshot
}

func (e *Entry) less(other *Entry) bool {
	if e.Weight != other.Weight {
		return e.Weight > other.Weight
	}
	if !e.EnqueuedAt.Equal(other.EnqueuedAt) {
		return e.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return e.seq < other.seq
}

// entryHeap implements heap.Interface over queue entries
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return h[i].less(h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
