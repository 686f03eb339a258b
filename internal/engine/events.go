package engine

import (
	"sync"

	"github.com/seantiz/sisyphus/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// EventBroker fans out lifecycle transitions to per-task subscribers.
// It is safe for concurrent use.
//
// Only tasks opened by this process have topics. Subscribing to any other task
// (one that already finished, or one left over from a previous process)
// returns a closed channel, and Close forgets the topic entirely.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan model.TaskEvent
	nextID int
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Open starts a topic for a task this process is about to execute. Opening an
// already open topic is a no-op.
func (b *EventBroker) Open(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[taskID]; !ok {
		b.topics[taskID] = &eventTopic{subs: make(map[int]chan model.TaskEvent)}
	}
}

// Subscribe returns a channel that receives events for the given task and an
// unsubscribe function. If the task has no open topic, the returned channel is
// immediately closed.
func (b *EventBroker) Subscribe(taskID string) (<-chan model.TaskEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.TaskEvent, subscriberBufferSize)
	t, ok := b.topics[taskID]
	if !ok {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of its task. Events are dropped
// for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev model.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.TaskID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close signals that no more events will be published for the given task,
// closes every subscriber channel and drops the topic.
func (b *EventBroker) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		return
	}

	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	delete(b.topics, taskID)
}

// Len returns the number of open topics.
func (b *EventBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
