// Package analytics batches usage events to the server. Everything is
// best-effort: a dropped batch is logged and forgotten, never retried
// at the cost of user-facing work.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/services/api"
)

const maxBatchSize = 50

// Event is one tracked action.
type Event struct {
	Name       string                 `json:"name"`
	SessionID  string                 `json:"session_id"`
	Timestamp  int64                  `json:"timestamp"` // unix ms
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Options configures a Tracker. Conf, Bus and API are required.
type Options struct {
	Conf   *core.Config
	Bus    *event.Bus
	API    *api.Client
	Logger core.Logger
}

// Tracker queues events and flushes them on an interval. A disabled
// tracker swallows everything silently.
type Tracker struct {
	conf      *core.Config
	api       *api.Client
	log       core.Logger
	sessionID string

	mu    sync.Mutex
	queue []Event
	stop  chan struct{}
	once  sync.Once
}

func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		conf:      opts.Conf,
		api:       opts.API,
		log:       opts.Logger,
		sessionID: uuid.New().String(),
		stop:      make(chan struct{}),
	}
	if !t.conf.AnalyticsEnabled {
		return t
	}

	// page views and auth transitions are tracked for free
	opts.Bus.Subscribe(event.TopicPageLoaded, func(e event.Event) {
		loaded := e.(event.PageLoaded)
		t.Track("page_view", map[string]interface{}{"path": loaded.Path, "title": loaded.Title})
	})
	opts.Bus.Subscribe(event.TopicLogin, func(event.Event) { t.Track("login", nil) })
	opts.Bus.Subscribe(event.TopicLogout, func(event.Event) { t.Track("logout", nil) })
	opts.Bus.Subscribe(event.TopicLessonCompleted, func(e event.Event) {
		t.Track("lesson_completed", map[string]interface{}{"lesson_id": e.(event.LessonCompleted).LessonID})
	})

	go t.flushLoop()
	return t
}

// Track queues one event.
func (t *Tracker) Track(name string, props map[string]interface{}) {
	if !t.conf.AnalyticsEnabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, Event{
		Name:       name,
		SessionID:  t.sessionID,
		Timestamp:  time.Now().UnixNano() / int64(time.Millisecond),
		Properties: props,
	})
	if len(t.queue) > maxBatchSize {
		t.queue = t.queue[len(t.queue)-maxBatchSize:]
	}
}

// Flush ships the queue. Failures drop the batch.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	if len(t.queue) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.queue
	t.queue = nil
	t.mu.Unlock()

	body := map[string]interface{}{"events": batch}
	if err := t.api.Post(ctx, api.EndpointAnalyticsEvent, body, nil); err != nil {
		t.log.Debug("analytics flush dropped", err)
	}
}

// Pending reports the number of queued events.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close stops the flusher and fires one final flush.
func (t *Tracker) Close() {
	t.once.Do(func() { close(t.stop) })
	if !t.conf.AnalyticsEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	t.Flush(ctx)
}

func (t *Tracker) flushLoop() {
	ticker := time.NewTicker(t.conf.AnalyticsFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Flush(context.Background())
		}
	}
}
