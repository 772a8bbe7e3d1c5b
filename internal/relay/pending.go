// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import "time"

type pendingEntry struct {
	frame      []byte
	msgType    string
	enqueuedAt time.Time
}

// pendingQueue parks frames whose target was unknown or not writable. It is
// bounded per id (oldest dropped first) and entries for ids that never show
// up are pruned after a TTL. Nothing here is durable.
type pendingQueue struct {
	limit   int
	entries map[string][]pendingEntry
}

func newPendingQueue(limit int) *pendingQueue {
	if limit < 1 {
		limit = 1
	}
	return &pendingQueue{limit: limit, entries: make(map[string][]pendingEntry)}
}

// enqueue appends frame for id and reports how many old entries were dropped.
func (q *pendingQueue) enqueue(id string, e pendingEntry) (dropped int) {
	list := append(q.entries[id], e)
	if over := len(list) - q.limit; over > 0 {
		list = append([]pendingEntry(nil), list[over:]...)
		dropped = over
	}
	q.entries[id] = list
	return dropped
}

// take removes and returns every entry for id in FIFO order.
func (q *pendingQueue) take(id string) []pendingEntry {
	list, ok := q.entries[id]
	if !ok {
		return nil
	}
	delete(q.entries, id)
	return list
}

// putBack restores entries that could not be flushed, ahead of anything
// queued since.
func (q *pendingQueue) putBack(id string, list []pendingEntry) {
	if len(list) == 0 {
		return
	}
	merged := append(list, q.entries[id]...)
	if over := len(merged) - q.limit; over > 0 {
		merged = merged[over:]
	}
	q.entries[id] = merged
}

// discard drops every entry for id and returns how many there were.
func (q *pendingQueue) discard(id string) int {
	n := len(q.entries[id])
	delete(q.entries, id)
	return n
}

// prune drops entries older than ttl for ids for which live reports false.
func (q *pendingQueue) prune(now time.Time, ttl time.Duration, live func(string) bool) int {
	dropped := 0
	for id, list := range q.entries {
		if live(id) {
			continue
		}
		keep := list[:0]
		for _, e := range list {
			if now.Sub(e.enqueuedAt) > ttl {
				dropped++
				continue
			}
			keep = append(keep, e)
		}
		if len(keep) == 0 {
			delete(q.entries, id)
		} else {
			q.entries[id] = keep
		}
	}
	return dropped
}

func (q *pendingQueue) depth(id string) int {
	return len(q.entries[id])
}

// total returns the number of ids with queued entries and the entry count.
func (q *pendingQueue) total() (ids, frames int) {
	for _, list := range q.entries {
		frames += len(list)
	}
	return len(q.entries), frames
}
