package runs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/esshva/quinn/internal/model"
)

// subscriberBuffer sizes each subscriber channel. A full buffer means the
// subscriber stopped receiving; it is pruned on the next publish rather
// than ever blocking the publisher.
const subscriberBuffer = 16

// Progress fans run progress events out to any number of subscribers,
// keyed by run id. The last event per run is retained so a late subscriber
// immediately sees the most recent state, even after the run finished.
type Progress struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]map[chan model.ProgressEvent]struct{}
	last        map[uuid.UUID]model.ProgressEvent
}

// NewProgress creates an empty progress broker.
func NewProgress() *Progress {
	return &Progress{
		subscribers: make(map[uuid.UUID]map[chan model.ProgressEvent]struct{}),
		last:        make(map[uuid.UUID]model.ProgressEvent),
	}
}

// Publish records the event as the run's last known state and fans it out.
// Subscribers whose buffer is full are pruned and closed. A terminal event
// (completed or failed) ends the stream: every subscriber channel is
// closed and the run's subscriber set is dropped, while the retained last
// event keeps serving late subscribers.
func (p *Progress) Publish(ev model.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last[ev.RunID] = ev
	subs := p.subscribers[ev.RunID]
	for ch := range subs {
		select {
		case ch <- ev:
		default:
			delete(subs, ch)
			close(ch)
		}
	}

	if ev.Status == model.EventCompleted || ev.Status == model.EventFailed {
		for ch := range subs {
			close(ch)
		}
		delete(p.subscribers, ev.RunID)
	}
}

// Subscribe returns a stream of events for one run. The last known event,
// if any, is delivered first. If the run already reached a terminal event
// the stream carries just that event and is closed immediately. Callers
// that stop receiving early should call Unsubscribe.
func (p *Progress) Subscribe(runID uuid.UUID) <-chan model.ProgressEvent {
	ch := make(chan model.ProgressEvent, subscriberBuffer)

	p.mu.Lock()
	defer p.mu.Unlock()

	last, seen := p.last[runID]
	if seen {
		ch <- last
		if last.Status == model.EventCompleted || last.Status == model.EventFailed {
			close(ch)
			return ch
		}
	}

	subs, ok := p.subscribers[runID]
	if !ok {
		subs = make(map[chan model.ProgressEvent]struct{})
		p.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe detaches a live subscriber and closes its channel. A no-op
// for channels already pruned or closed by a terminal event.
func (p *Progress) Unsubscribe(runID uuid.UUID, ch <-chan model.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subscribers[runID]
	for sub := range subs {
		if sub == ch {
			delete(subs, sub)
			close(sub)
			return
		}
	}
}

// Forget drops the retained last event for a run. Called when the registry
// evicts the run so the cache does not outlive the table entry.
func (p *Progress) Forget(runID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.last, runID)
}
