// Package statestream implements the state-commit stream from spec.md §4.10:
// one batch of commit events published after each execute() call or
// transaction commit that produced tracked writes, filtered per subscriber,
// and never published on rollback.
//
// The dispatch/filter/JetStream shape is adapted from the teacher
// repository's event bus: a mutex-guarded subscriber list, local
// fan-out first, then an optional JetStream publish for durable,
// out-of-process consumers.
package statestream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/lixdb/lix/internal/types"
)

// StreamCommitEvents is the JetStream stream name commit batches publish to
// when a JetStream context is attached.
const StreamCommitEvents = "LIX_COMMIT_EVENTS"

// SubjectCommitEvents is the subject every published batch uses.
const SubjectCommitEvents = "lix.commit"

// Stream fans a CommitBatch out to every subscriber whose filter matches at
// least one of the batch's events, and optionally persists the batch to
// JetStream for durable/remote consumption.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
	js   nats.JetStreamContext
}

type subscription struct {
	filter types.StreamFilter
	ch     chan types.CommitBatch
}

// New constructs an empty Stream.
func New() *Stream {
	return &Stream{subs: map[int]*subscription{}}
}

// SetJetStream attaches a JetStream context. When set, Publish also persists
// the batch; publish failures are logged, never returned, matching the
// bus's existing "JetStream is supplementary" stance.
func (s *Stream) SetJetStream(js nats.JetStreamContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.js = js
}

// EnsureStream creates the commit-events JetStream stream if it does not
// already exist. Called once during engine startup when NATS is enabled.
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamCommitEvents); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamCommitEvents,
			Subjects: []string{SubjectCommitEvents},
			Storage:  nats.FileStorage,
			MaxMsgs:  100000,
			MaxBytes: 512 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamCommitEvents, err)
		}
	}
	return nil
}

// Subscribe registers a new subscriber matching filter and returns a channel
// of batches plus an unsubscribe func. The channel is buffered; a slow
// subscriber that falls behind has batches dropped for it rather than
// blocking Publish for everyone else — matching spec.md §4.10's "at most
// one batch per commit, best-effort delivery" framing.
func (s *Stream) Subscribe(filter types.StreamFilter) (<-chan types.CommitBatch, func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	ch := make(chan types.CommitBatch, 32)
	s.subs[id] = &subscription{filter: filter, ch: ch}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans batch out to every matching subscriber and, if configured,
// persists it to JetStream. A batch with no events is a no-op — there is
// nothing to publish on a transaction that touched no tracked rows.
func (s *Stream) Publish(ctx context.Context, batch types.CommitBatch) {
	if len(batch.Changes) == 0 {
		return
	}

	s.mu.RLock()
	js := s.js
	channels := make([]chan types.CommitBatch, 0, len(s.subs))
	filtered := make([]types.CommitBatch, 0, len(s.subs))
	for _, sub := range s.subs {
		fb := filterBatch(batch, sub.filter)
		if len(fb.Changes) == 0 {
			continue
		}
		channels = append(channels, sub.ch)
		filtered = append(filtered, fb)
	}
	s.mu.RUnlock()

	for i, ch := range channels {
		select {
		case ch <- filtered[i]:
		default:
			log.Printf("statestream: subscriber channel full, dropping batch of %d events", len(filtered[i].Changes))
		}
	}

	if js != nil {
		s.publishToJetStream(js, batch)
	}
}

// filterBatch narrows batch to the events filter admits: schema_key must be
// in the inclusion list (or the list is empty, meaning "all"), and
// writer_key must not be in the exclusion list.
func filterBatch(batch types.CommitBatch, filter types.StreamFilter) types.CommitBatch {
	if len(filter.SchemaKeys) == 0 && len(filter.ExcludeWriterKeys) == 0 {
		return batch
	}
	include := map[string]bool{}
	for _, k := range filter.SchemaKeys {
		include[k] = true
	}
	exclude := map[string]bool{}
	for _, w := range filter.ExcludeWriterKeys {
		exclude[w] = true
	}
	out := types.CommitBatch{}
	for _, ev := range batch.Changes {
		if len(include) > 0 && !include[ev.SchemaKey] {
			continue
		}
		if exclude[ev.WriterKey] {
			continue
		}
		out.Changes = append(out.Changes, ev)
	}
	return out
}

func (s *Stream) publishToJetStream(js nats.JetStreamContext, batch types.CommitBatch) {
	data, err := json.Marshal(batch)
	if err != nil {
		log.Printf("statestream: marshal commit batch: %v", err)
		return
	}
	if _, err := js.Publish(SubjectCommitEvents, data); err != nil {
		log.Printf("statestream: JetStream publish to %s failed: %v", SubjectCommitEvents, err)
	}
}
