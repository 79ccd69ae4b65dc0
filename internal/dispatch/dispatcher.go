// Package dispatch delivers assistant replies with a human cadence: long
// replies are split into chunks, each chunk is preceded by a typing
// indicator and a length-proportional delay, and consecutive chunks are
// separated by a randomized pause. Delivery order is strict per conversation.
package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Gustavo1341/meurepositorio/internal/observability/metrics"
	"github.com/Gustavo1341/meurepositorio/internal/transport"
	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

// ErrDispatcherClosed is returned by Enqueue after Shutdown begins.
var ErrDispatcherClosed = errors.New("dispatch: dispatcher closed")

// Config tunes the delivery cadence.
type Config struct {
	MaxChunkLength     int
	TypingDelayPerRune time.Duration
	TypingDelayMin     time.Duration
	TypingDelayMax     time.Duration
	InterMessageMin    time.Duration
	InterMessageMax    time.Duration
}

// item is one queued reply: either chunked text or a media asset.
type item struct {
	chunks   []string
	mediaURL string
	caption  string
}

// Dispatcher serializes outbound delivery per conversation. One drain
// goroutine runs per conversation with queued work; a reply enqueued while
// another is in flight waits its turn.
type Dispatcher struct {
	sender  transport.Sender
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.BotMetrics
	sleep   func(time.Duration)

	mu       sync.Mutex
	queues   map[string][]item
	draining map[string]bool
	rand     *rand.Rand
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithSleepFunc replaces the delay function. Tests use this to run instantly
// while still observing the requested durations.
func WithSleepFunc(sleep func(time.Duration)) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithRandSource seeds the pause randomizer deterministically.
func WithRandSource(seed int64) Option {
	return func(d *Dispatcher) {
		d.rand = rand.New(rand.NewSource(seed))
	}
}

// WithMetrics wires delivery instrumentation.
func WithMetrics(m *metrics.BotMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher over the given sender.
func NewDispatcher(sender transport.Sender, cfg Config, logger *logging.Logger, opts ...Option) *Dispatcher {
	if sender == nil {
		panic("dispatch: sender is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxChunkLength <= 0 {
		cfg.MaxChunkLength = 600
	}
	if cfg.TypingDelayPerRune <= 0 {
		cfg.TypingDelayPerRune = 35 * time.Millisecond
	}
	if cfg.TypingDelayMin <= 0 {
		cfg.TypingDelayMin = 2 * time.Second
	}
	if cfg.TypingDelayMax < cfg.TypingDelayMin {
		cfg.TypingDelayMax = 8 * time.Second
	}
	if cfg.InterMessageMin <= 0 {
		cfg.InterMessageMin = time.Second
	}
	if cfg.InterMessageMax < cfg.InterMessageMin {
		cfg.InterMessageMax = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		sleep:    time.Sleep,
		queues:   make(map[string][]item),
		draining: make(map[string]bool),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnqueueText queues a reply for delivery. The text is chunked here so the
// caller never worries about provider length limits.
func (d *Dispatcher) EnqueueText(conversationID, text string) error {
	chunks := SplitChunks(text, d.cfg.MaxChunkLength)
	if len(chunks) == 0 {
		return nil
	}
	return d.enqueue(conversationID, item{chunks: chunks})
}

// EnqueueMedia queues a media send.
func (d *Dispatcher) EnqueueMedia(conversationID, mediaURL, caption string) error {
	if mediaURL == "" {
		return nil
	}
	return d.enqueue(conversationID, item{mediaURL: mediaURL, caption: caption})
}

func (d *Dispatcher) enqueue(conversationID string, it item) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.queues[conversationID] = append(d.queues[conversationID], it)
	if !d.draining[conversationID] {
		d.draining[conversationID] = true
		d.wg.Add(1)
		go d.drain(conversationID)
	}
	return nil
}

// drain delivers queued items for one conversation in FIFO order until the
// queue empties.
func (d *Dispatcher) drain(conversationID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[conversationID]
		if len(queue) == 0 {
			d.draining[conversationID] = false
			delete(d.queues, conversationID)
			d.mu.Unlock()
			return
		}
		it := queue[0]
		d.queues[conversationID] = queue[1:]
		d.mu.Unlock()

		if err := d.deliver(conversationID, it); err != nil {
			d.logger.Error("dispatch: delivery failed, dropping remainder of reply",
				"conversation_id", conversationID, "error", err)
		}
	}
}

// deliver sends one item. A send failure aborts the item's remaining chunks;
// queued items behind it still go out.
func (d *Dispatcher) deliver(conversationID string, it item) error {
	if it.mediaURL != "" {
		if err := d.sender.SendMedia(d.ctx, conversationID, it.mediaURL, it.caption); err != nil {
			d.metrics.ObserveOutboundChunk("error")
			return err
		}
		d.metrics.ObserveOutboundChunk("sent")
		return nil
	}
	for i, chunk := range it.chunks {
		if err := d.ctx.Err(); err != nil {
			return err
		}
		if err := d.sender.SendTypingState(d.ctx, conversationID, true); err != nil {
			d.logger.Warn("dispatch: typing-on failed", "conversation_id", conversationID, "error", err)
		}
		d.sleep(d.typingDelay(chunk))
		if err := d.sender.SendText(d.ctx, conversationID, chunk); err != nil {
			d.metrics.ObserveOutboundChunk("error")
			d.sender.SendTypingState(d.ctx, conversationID, false)
			return err
		}
		d.metrics.ObserveOutboundChunk("sent")
		if err := d.sender.SendTypingState(d.ctx, conversationID, false); err != nil {
			d.logger.Warn("dispatch: typing-off failed", "conversation_id", conversationID, "error", err)
		}
		if i < len(it.chunks)-1 {
			d.sleep(d.interMessagePause())
		}
	}
	return nil
}

// typingDelay scales with chunk length and clamps to the configured range.
func (d *Dispatcher) typingDelay(chunk string) time.Duration {
	delay := time.Duration(utf8.RuneCountInString(chunk)) * d.cfg.TypingDelayPerRune
	if delay < d.cfg.TypingDelayMin {
		return d.cfg.TypingDelayMin
	}
	if delay > d.cfg.TypingDelayMax {
		return d.cfg.TypingDelayMax
	}
	return delay
}

// interMessagePause picks a random pause in [InterMessageMin, InterMessageMax].
func (d *Dispatcher) interMessagePause() time.Duration {
	span := d.cfg.InterMessageMax - d.cfg.InterMessageMin
	if span <= 0 {
		return d.cfg.InterMessageMin
	}
	d.mu.Lock()
	jitter := time.Duration(d.rand.Int63n(int64(span) + 1))
	d.mu.Unlock()
	return d.cfg.InterMessageMin + jitter
}

// Shutdown stops accepting replies and waits for queued deliveries to finish
// or ctx to expire, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
