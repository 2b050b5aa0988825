package workflow

import "sync"

type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventFailed    EventType = "failed"
)

// Event reports the progress or the end of a job.
type Event struct {
	Type     EventType `json:"type"`
	Task     string    `json:"task"`
	Value    int       `json:"value"`
	Error    string    `json:"error,omitempty"`
	Category Category  `json:"category,omitempty"`
}

const subscriberBuffer = 64

// hub fans events out to subscribers. A subscriber that does not keep up
// misses progress events rather than stalling the job.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a stream of job events and a function that ends the
// subscription.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.hub.subscribe()
}
