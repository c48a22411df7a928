// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package cache

import "time"

// ageNode is one key in the age index.
type ageNode struct {
	key       string
	inserted  time.Time
	seq       uint64
	heapIndex int
}

// ageIndex is a min-heap of cache keys ordered by insertion time, with a
// sequence number breaking ties. It backs capacity eviction: the root is
// always the oldest entry. It is not synchronized; the owning cache's lock
// guards it.
type ageIndex struct {
	heap  []*ageNode
	byKey map[string]*ageNode
	seq   uint64
}

func newAgeIndex() *ageIndex {
	return &ageIndex{byKey: make(map[string]*ageNode)}
}

// touch records key as inserted at t, moving it if already present.
func (h *ageIndex) touch(key string, t time.Time) {
	h.seq++
	if n, ok := h.byKey[key]; ok {
		n.inserted = t
		n.seq = h.seq
		h.fix(n.heapIndex)
		return
	}
	n := &ageNode{key: key, inserted: t, seq: h.seq, heapIndex: len(h.heap)}
	h.heap = append(h.heap, n)
	h.byKey[key] = n
	h.up(n.heapIndex)
}

// oldest returns the oldest key without removing it.
func (h *ageIndex) oldest() (string, bool) {
	if len(h.heap) == 0 {
		return "", false
	}
	return h.heap[0].key, true
}

func (h *ageIndex) remove(key string) {
	n, ok := h.byKey[key]
	if !ok {
		return
	}
	delete(h.byKey, key)

	last := len(h.heap) - 1
	i := n.heapIndex
	if i != last {
		h.heap[i] = h.heap[last]
		h.heap[i].heapIndex = i
	}
	h.heap = h.heap[:last]
	if i < len(h.heap) {
		h.fix(i)
	}
}

func (h *ageIndex) len() int {
	return len(h.heap)
}

func (h *ageIndex) less(i, j int) bool {
	a, b := h.heap[i], h.heap[j]
	if a.inserted.Equal(b.inserted) {
		return a.seq < b.seq
	}
	return a.inserted.Before(b.inserted)
}

func (h *ageIndex) fix(i int) {
	if !h.up(i) {
		h.down(i)
	}
}

func (h *ageIndex) up(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (h *ageIndex) down(i int) {
	n := len(h.heap)
	for {
		smallest := i
		if l := 2*i + 1; l < n && h.less(l, smallest) {
			smallest = l
		}
		if r := 2*i + 2; r < n && h.less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *ageIndex) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.heap[i].heapIndex = i
	h.heap[j].heapIndex = j
}
