// Package batch debounces inbound message fragments. WhatsApp contacts send
// thoughts split across several quick messages; the batcher collects the
// fragments of a conversation and hands them to the processing pipeline as a
// single turn once the contact goes quiet.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

// ErrBatcherClosed is returned by Add after Shutdown begins.
var ErrBatcherClosed = errors.New("batch: batcher closed")

// Fragment is one inbound message unit, pre-split by the transport.
type Fragment struct {
	ConversationID string
	Sender         string
	Text           string
	MediaURL       string
	Timestamp      time.Time
	Metadata       map[string]string
}

// ProcessFunc consumes a debounced batch of fragments for one conversation.
// Returning an error aborts any fragments queued behind the running batch.
type ProcessFunc func(ctx context.Context, conversationID string, fragments []Fragment) error

// convState tracks one conversation through the Idle -> Collecting ->
// Processing cycle. Idle is represented by absence from the state map.
type convState struct {
	timer      *time.Timer
	buffer     []Fragment
	processing bool
	pending    []Fragment
}

// Batcher owns the per-conversation debounce timers. At most one processing
// run is in flight per conversation at any time; fragments arriving during a
// run are folded into it.
type Batcher struct {
	window  time.Duration
	process ProcessFunc
	logger  *logging.Logger

	mu     sync.Mutex
	states map[string]*convState
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatcher creates a batcher that waits window after the last fragment
// before processing.
func NewBatcher(window time.Duration, process ProcessFunc, logger *logging.Logger) *Batcher {
	if process == nil {
		panic("batch: process func is required")
	}
	if window <= 0 {
		window = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		window:  window,
		process: process,
		logger:  logger,
		states:  make(map[string]*convState),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add enqueues a fragment. Each arrival restarts the conversation's debounce
// timer; a fragment arriving while a run is in flight joins that run instead
// of starting a new one.
func (b *Batcher) Add(fragment Fragment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatcherClosed
	}
	id := fragment.ConversationID
	st := b.states[id]
	if st == nil {
		st = &convState{}
		b.states[id] = st
	}

	if st.processing {
		st.pending = append(st.pending, fragment)
		return nil
	}

	st.buffer = append(st.buffer, fragment)
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(b.window, func() { b.fire(id) })
	return nil
}

// fire moves a conversation from Collecting to Processing when its timer
// elapses.
func (b *Batcher) fire(conversationID string) {
	b.mu.Lock()
	st := b.states[conversationID]
	if st == nil || st.processing || len(st.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := st.buffer
	st.buffer = nil
	st.timer = nil
	st.processing = true
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(conversationID, batch)
}

// run executes the processing loop for one conversation, folding in fragments
// that arrived mid-run until none remain. A processing failure drops whatever
// is pending so a poisoned turn cannot wedge the conversation.
func (b *Batcher) run(conversationID string, batch []Fragment) {
	defer b.wg.Done()
	for {
		err := b.process(b.ctx, conversationID, batch)

		b.mu.Lock()
		st := b.states[conversationID]
		if st == nil {
			b.mu.Unlock()
			return
		}
		if err != nil {
			dropped := len(st.pending)
			st.pending = nil
			st.processing = false
			b.cleanupLocked(conversationID, st)
			b.mu.Unlock()
			b.logger.Error("batch: processing failed, aborting pending fragments",
				"conversation_id", conversationID, "dropped", dropped, "error", err)
			return
		}
		if len(st.pending) > 0 {
			batch = st.pending
			st.pending = nil
			b.mu.Unlock()
			continue
		}
		st.processing = false
		b.cleanupLocked(conversationID, st)
		b.mu.Unlock()
		return
	}
}

// cleanupLocked drops the state entry once a conversation is fully idle.
// Caller holds the mutex.
func (b *Batcher) cleanupLocked(conversationID string, st *convState) {
	if !st.processing && st.timer == nil && len(st.buffer) == 0 && len(st.pending) == 0 {
		delete(b.states, conversationID)
	}
}

// Flush processes a conversation's collected fragments immediately instead of
// waiting out the debounce window. No-op when nothing is collecting.
func (b *Batcher) Flush(conversationID string) {
	b.mu.Lock()
	st := b.states[conversationID]
	if st == nil || st.processing || len(st.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	b.mu.Unlock()
	b.fire(conversationID)
}

// Shutdown stops accepting fragments, fires every collecting conversation
// immediately, and waits for in-flight runs to finish or ctx to expire.
func (b *Batcher) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var pendingIDs []string
	for id, st := range b.states {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		if !st.processing && len(st.buffer) > 0 {
			pendingIDs = append(pendingIDs, id)
		}
	}
	b.mu.Unlock()

	for _, id := range pendingIDs {
		b.fire(id)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
	b.cancel()
	return nil
}
