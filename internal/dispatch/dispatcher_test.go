package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Gustavo1341/meurepositorio/internal/observability/metrics"
)

type fakeSender struct {
	mu     sync.Mutex
	events []string
	fail   map[string]error // text -> error returned by SendText
	gate   chan struct{}    // when set, SendText waits until closed
}

func (f *fakeSender) SendText(_ context.Context, conversationID, text string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[text]; err != nil {
		return err
	}
	f.events = append(f.events, fmt.Sprintf("text:%s:%s", conversationID, text))
	return nil
}

func (f *fakeSender) SendTypingState(_ context.Context, conversationID string, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("typing:%s:%v", conversationID, typing))
	return nil
}

func (f *fakeSender) SendMedia(_ context.Context, conversationID, mediaURL, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("media:%s:%s", conversationID, mediaURL))
	return nil
}

func (f *fakeSender) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) snapshot() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.sleeps))
	copy(out, s.sleeps)
	return out
}

func testConfig() Config {
	return Config{
		MaxChunkLength:     50,
		TypingDelayPerRune: 10 * time.Millisecond,
		TypingDelayMin:     100 * time.Millisecond,
		TypingDelayMax:     500 * time.Millisecond,
		InterMessageMin:    200 * time.Millisecond,
		InterMessageMax:    600 * time.Millisecond,
	}
}

func TestDispatcherDeliversChunksInOrder(t *testing.T) {
	sender := &fakeSender{}
	rec := &sleepRecorder{}
	d := NewDispatcher(sender, testConfig(), nil, WithSleepFunc(rec.sleep), WithRandSource(1))

	text := "Primeira parte da resposta completa. Segunda parte que vai em outra mensagem."
	if err := d.EnqueueText("c1", text); err != nil {
		t.Fatalf("EnqueueText: %v", err)
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	events := sender.snapshot()
	var texts []string
	for _, ev := range events {
		if strings.HasPrefix(ev, "text:c1:") {
			texts = append(texts, strings.TrimPrefix(ev, "text:c1:"))
		}
	}
	if len(texts) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(texts), texts)
	}
	if !strings.HasPrefix(texts[0], "Primeira") || !strings.HasPrefix(texts[1], "Segunda") {
		t.Fatalf("chunks out of order: %v", texts)
	}

	// Every text send is framed by typing on/off.
	joined := strings.Join(events, ",")
	if !strings.Contains(joined, "typing:c1:true,text:c1:") {
		t.Fatalf("typing indicator not raised before send: %v", events)
	}
	if strings.Count(joined, "typing:c1:true") != 2 || strings.Count(joined, "typing:c1:false") != 2 {
		t.Fatalf("typing framing wrong: %v", events)
	}
}

func TestDispatcherTypingDelayClampedAndPauseBounded(t *testing.T) {
	sender := &fakeSender{}
	rec := &sleepRecorder{}
	cfg := testConfig()
	d := NewDispatcher(sender, cfg, nil, WithSleepFunc(rec.sleep), WithRandSource(7))

	long := strings.Repeat("a", 45) + " " + strings.Repeat("b", 45)
	if err := d.EnqueueText("c1", long); err != nil {
		t.Fatalf("EnqueueText: %v", err)
	}
	d.Shutdown(context.Background())

	sleeps := rec.snapshot()
	// chunk delay, inter-message pause, chunk delay
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 sleeps, got %v", sleeps)
	}
	for _, i := range []int{0, 2} {
		if sleeps[i] < cfg.TypingDelayMin || sleeps[i] > cfg.TypingDelayMax {
			t.Fatalf("typing delay %v outside [%v, %v]", sleeps[i], cfg.TypingDelayMin, cfg.TypingDelayMax)
		}
	}
	if sleeps[1] < cfg.InterMessageMin || sleeps[1] > cfg.InterMessageMax {
		t.Fatalf("pause %v outside [%v, %v]", sleeps[1], cfg.InterMessageMin, cfg.InterMessageMax)
	}
}

func TestDispatcherTypingDelayProportionalToLength(t *testing.T) {
	sender := &fakeSender{}
	rec := &sleepRecorder{}
	cfg := testConfig()
	cfg.TypingDelayMin = time.Millisecond
	cfg.TypingDelayMax = time.Hour
	d := NewDispatcher(sender, cfg, nil, WithSleepFunc(rec.sleep))

	d.EnqueueText("c1", strings.Repeat("a", 10))
	d.Shutdown(context.Background())

	sleeps := rec.snapshot()
	if len(sleeps) != 1 || sleeps[0] != 100*time.Millisecond {
		t.Fatalf("delay = %v, want 100ms for 10 runes at 10ms/rune", sleeps)
	}
}

func TestDispatcherSecondBatchWaitsForFirst(t *testing.T) {
	gate := make(chan struct{})
	sender := &fakeSender{gate: gate}
	rec := &sleepRecorder{}
	d := NewDispatcher(sender, testConfig(), nil, WithSleepFunc(rec.sleep))

	d.EnqueueText("c1", "primeira resposta")
	d.EnqueueText("c1", "segunda resposta")

	time.Sleep(50 * time.Millisecond)
	for _, ev := range sender.snapshot() {
		if strings.HasPrefix(ev, "text:") {
			t.Fatalf("text sent while first batch was gated: %v", ev)
		}
	}

	close(gate)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	var texts []string
	for _, ev := range sender.snapshot() {
		if strings.HasPrefix(ev, "text:c1:") {
			texts = append(texts, strings.TrimPrefix(ev, "text:c1:"))
		}
	}
	if len(texts) != 2 || texts[0] != "primeira resposta" || texts[1] != "segunda resposta" {
		t.Fatalf("ordering broken: %v", texts)
	}
}

func TestDispatcherSendFailureDropsRestOfReply(t *testing.T) {
	sender := &fakeSender{fail: map[string]error{}}
	rec := &sleepRecorder{}
	cfg := testConfig()
	d := NewDispatcher(sender, cfg, nil, WithSleepFunc(rec.sleep))

	first := strings.Repeat("a", 45)
	second := strings.Repeat("b", 45)
	sender.fail[first] = errors.New("provider down")

	d.EnqueueText("c1", first+" "+second)
	d.EnqueueText("c1", "proxima resposta")
	d.Shutdown(context.Background())

	var texts []string
	for _, ev := range sender.snapshot() {
		if strings.HasPrefix(ev, "text:c1:") {
			texts = append(texts, strings.TrimPrefix(ev, "text:c1:"))
		}
	}
	// The failed reply's second chunk is dropped; the next queued reply
	// still goes out.
	if len(texts) != 1 || texts[0] != "proxima resposta" {
		t.Fatalf("texts = %v", texts)
	}
}

func TestDispatcherMediaDelivery(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, testConfig(), nil, WithSleepFunc(func(time.Duration) {}))

	d.EnqueueMedia("c1", "https://cdn.example.com/depoimento_1.mp4", "Olha esse resultado")
	d.Shutdown(context.Background())

	events := sender.snapshot()
	if len(events) != 1 || events[0] != "media:c1:https://cdn.example.com/depoimento_1.mp4" {
		t.Fatalf("events = %v", events)
	}
}

func TestDispatcherEnqueueAfterShutdown(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, testConfig(), nil, WithSleepFunc(func(time.Duration) {}))
	d.Shutdown(context.Background())

	if err := d.EnqueueText("c1", "tarde"); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("err = %v, want ErrDispatcherClosed", err)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestDispatcherCountsDeliveredChunks(t *testing.T) {
	sender := &fakeSender{fail: map[string]error{"vai falhar": errors.New("provider down")}}
	reg := prometheus.NewRegistry()
	m := metrics.NewBotMetrics(reg)
	d := NewDispatcher(sender, testConfig(), nil,
		WithSleepFunc(func(time.Duration) {}), WithMetrics(m))

	d.EnqueueText("c1", "tudo certo")
	d.EnqueueText("c1", "vai falhar")
	d.EnqueueMedia("c1", "https://cdn.example.com/caso.mp4", "")
	d.Shutdown(context.Background())

	if got := counterValue(t, reg, "salesbot_outbound_chunks_total", "sent"); got != 2 {
		t.Fatalf("sent chunks = %v, want 2 (text + media)", got)
	}
	if got := counterValue(t, reg, "salesbot_outbound_chunks_total", "error"); got != 1 {
		t.Fatalf("error chunks = %v, want 1", got)
	}
}
