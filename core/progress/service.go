// Package progress tracks lesson watch positions and completion. All
// writes are queued locally and shipped to the server in batches, so
// progress survives the network dropping out mid-lesson.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/services/api"
	"github.com/trezcool/darasa/storage/kv"
)

const (
	maxQueueSize = 100
	positionTTL  = 30 * 24 * time.Hour
)

// Options configures a Service. Conf, Bus, Store and API are required.
type Options struct {
	Conf   *core.Config
	Bus    *event.Bus
	Store  kv.Store
	API    *api.Client
	Logger core.Logger
}

// Service owns the offline progress queue and the local last-position
// cache.
type Service struct {
	conf  *core.Config
	bus   *event.Bus
	store kv.Store
	api   *api.Client
	log   core.Logger

	mu      sync.Mutex
	queue   []Event
	online  bool
	stop    chan struct{}
	nowFunc func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		conf:    opts.Conf,
		bus:     opts.Bus,
		store:   opts.Store,
		api:     opts.API,
		log:     opts.Logger,
		online:  true,
		stop:    make(chan struct{}),
		nowFunc: time.Now,
	}
	_ = s.store.Get(kv.KeyProgressQueue, &s.queue)

	s.bus.Subscribe(event.TopicOnline, func(event.Event) {
		s.mu.Lock()
		s.online = true
		s.mu.Unlock()
		if err := s.Flush(context.Background()); err != nil {
			s.log.Debug("flush on reconnect failed", err)
		}
	})
	s.bus.Subscribe(event.TopicOffline, func(event.Event) {
		s.mu.Lock()
		s.online = false
		s.mu.Unlock()
	})

	go s.flushLoop()
	return s
}

// SavePosition records a playback position. The position lands in the
// local cache immediately and in the outbound queue for the server.
// Crossing the auto-complete threshold marks the lesson complete.
func (s *Service) SavePosition(ctx context.Context, courseID, lessonID string, position, duration float64) {
	saved := savedPosition{Position: position, Duration: duration}
	_ = s.store.GetTTL(kv.KeyLessonPositionPrefix+lessonID, &saved)
	saved.Position = position
	if duration > 0 {
		saved.Duration = duration
	}

	completedNow := false
	if !saved.Completed && saved.Duration > 0 &&
		position/saved.Duration >= s.conf.VideoAutoCompleteThreshold {
		saved.Completed = true
		completedNow = true
	}
	_ = s.store.SetTTL(kv.KeyLessonPositionPrefix+lessonID, saved, positionTTL)

	s.enqueue(Event{
		LessonID:  lessonID,
		CourseID:  courseID,
		Kind:      KindPosition,
		Position:  position,
		Duration:  saved.Duration,
		Timestamp: s.unixMS(),
	})
	pct := 0
	if saved.Duration > 0 {
		pct = int(position / saved.Duration * 100)
	}
	s.bus.Publish(event.LessonProgress{
		LessonID:       lessonID,
		Percentage:     pct,
		WatchedSeconds: int(position),
		TotalSeconds:   int(saved.Duration),
	})

	if completedNow {
		s.Complete(ctx, courseID, lessonID)
	}
}

// Complete marks a lesson finished. The server is told right away when
// online; the queued event still ships with the next batch, which the
// server must apply idempotently.
func (s *Service) Complete(ctx context.Context, courseID, lessonID string) {
	var saved savedPosition
	_ = s.store.GetTTL(kv.KeyLessonPositionPrefix+lessonID, &saved)
	saved.Completed = true
	_ = s.store.SetTTL(kv.KeyLessonPositionPrefix+lessonID, saved, positionTTL)

	s.mu.Lock()
	online := s.online
	s.mu.Unlock()
	if online {
		if err := s.api.Post(ctx, api.EndpointLessonComplete(lessonID), nil, nil); err != nil {
			s.log.Debug("immediate complete failed, queued for batch", err)
		}
	}

	s.enqueue(Event{
		LessonID:  lessonID,
		CourseID:  courseID,
		Kind:      KindComplete,
		Timestamp: s.unixMS(),
	})
	s.bus.Publish(event.LessonCompleted{LessonID: lessonID})
}

// LastPosition returns the locally cached playback position for a
// lesson, if one exists.
func (s *Service) LastPosition(lessonID string) (position float64, ok bool) {
	var saved savedPosition
	if err := s.store.GetTTL(kv.KeyLessonPositionPrefix+lessonID, &saved); err != nil {
		return 0, false
	}
	return saved.Position, true
}

// Flush ships the queue to the server in one batch. On failure the
// items return to the front of the queue, ahead of anything enqueued
// meanwhile.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.queue
	s.queue = nil
	s.persistLocked()
	s.mu.Unlock()

	err := s.api.Post(ctx, api.EndpointProgressBatch, map[string]interface{}{"events": batch}, nil)
	if err != nil {
		s.mu.Lock()
		s.queue = append(batch, s.queue...)
		if len(s.queue) > maxQueueSize {
			s.queue = s.queue[len(s.queue)-maxQueueSize:]
		}
		s.persistLocked()
		s.mu.Unlock()
		return err
	}
	return nil
}

// Pending reports the number of queued events.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// CourseProgress fetches the server-side rollup for a course.
func (s *Service) CourseProgress(ctx context.Context, courseID string) (CourseProgress, error) {
	var resp struct {
		Data CourseProgress `json:"data"`
	}
	err := s.api.GetCached(ctx, api.EndpointCourseProgress(courseID), &resp)
	return resp.Data, err
}

// LessonProgress fetches the server-side state for one lesson.
func (s *Service) LessonProgress(ctx context.Context, lessonID string) (LessonProgress, error) {
	var resp struct {
		Data LessonProgress `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointLessonProgress(lessonID), &resp)
	return resp.Data, err
}

// DashboardStats fetches the student dashboard rollup.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var resp struct {
		Data DashboardStats `json:"data"`
	}
	err := s.api.GetCached(ctx, api.EndpointDashboardStats, &resp)
	return resp.Data, err
}

// Close stops the background flusher and fires one last best-effort
// flush.
func (s *Service) Close() {
	close(s.stop)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.log.Debug("final progress flush failed", err)
	}
}

// ---------------------------------------------------------------------

// enqueue adds an event, replacing any queued event for the same
// (lesson, kind) pair in place. The queue is re-persisted after every
// mutation so a crash loses nothing.
func (s *Service) enqueue(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, queued := range s.queue {
		if queued.LessonID == e.LessonID && queued.Kind == e.Kind {
			s.queue[i] = e
			s.persistLocked()
			return
		}
	}
	s.queue = append(s.queue, e)
	if len(s.queue) > maxQueueSize {
		s.queue = s.queue[len(s.queue)-maxQueueSize:]
	}
	s.persistLocked()
}

func (s *Service) persistLocked() {
	_ = s.store.Set(kv.KeyProgressQueue, s.queue)
}

func (s *Service) flushLoop() {
	ticker := time.NewTicker(s.conf.ProgressSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			ready := s.online && len(s.queue) > 0
			s.mu.Unlock()
			if !ready {
				continue
			}
			if err := s.Flush(context.Background()); err != nil {
				s.log.Debug("progress flush failed", err)
			}
		}
	}
}

func (s *Service) unixMS() int64 {
	return s.nowFunc().UnixNano() / int64(time.Millisecond)
}
