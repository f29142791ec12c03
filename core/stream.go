package core

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"crowdchain/core/types"
)

const eventHistoryLimit = 2048

// EventRecord is a committed event with its position in the node's stream.
type EventRecord struct {
	Sequence  uint64
	Cursor    string
	Timestamp int64
	Event     *types.Event
}

func cloneEventRecord(rec EventRecord) EventRecord {
	cloned := rec
	cloned.Event = rec.Event.Clone()
	return cloned
}

type eventStream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan EventRecord
	history []EventRecord
}

func (s *eventStream) publish(ts int64, evt *types.Event) EventRecord {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan EventRecord)
	}
	s.seq++
	rec := EventRecord{
		Sequence:  s.seq,
		Cursor:    strconv.FormatUint(s.seq, 10),
		Timestamp: ts,
		Event:     evt.Clone(),
	}
	s.history = append(s.history, cloneEventRecord(rec))
	if len(s.history) > eventHistoryLimit {
		excess := len(s.history) - eventHistoryLimit
		trimmed := make([]EventRecord, eventHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends never block, so slow subscribers drop records instead of stalling
	// the publisher. Holding the lock keeps cancel from closing a channel
	// mid-send.
	for _, ch := range s.subs {
		select {
		case ch <- cloneEventRecord(rec):
		default:
		}
	}
	s.mu.Unlock()
	return rec
}

func (s *eventStream) subscribe(ctx context.Context, cursor string, buffer int) (<-chan EventRecord, func(), []EventRecord) {
	if buffer <= 0 {
		buffer = 64
	}
	updates := make(chan EventRecord, buffer)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan EventRecord)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]EventRecord, 0, len(s.history))
	for _, rec := range s.history {
		if rec.Sequence > since {
			backlog = append(backlog, cloneEventRecord(rec))
		}
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}
