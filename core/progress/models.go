package progress

// Kind distinguishes the progress events batched to the server.
type Kind string

const (
	KindPosition Kind = "position"
	KindComplete Kind = "complete"
)

// Event is one queued progress update. At most one event per
// (lesson, kind) pair lives in the queue; newer events replace older
// ones in place.
type Event struct {
	LessonID  string  `json:"lesson_id"`
	CourseID  string  `json:"course_id,omitempty"`
	Kind      Kind    `json:"kind"`
	Position  float64 `json:"position,omitempty"` // seconds into the video
	Duration  float64 `json:"duration,omitempty"` // total video length, seconds
	Timestamp int64   `json:"timestamp"`          // unix ms, client clock
}

// LessonProgress is the per-lesson state served by /progress/lesson/{id}.
type LessonProgress struct {
	LessonID    string  `json:"lesson_id"`
	Position    float64 `json:"position"`
	Duration    float64 `json:"duration"`
	Percent     float64 `json:"percent"`
	Completed   bool    `json:"completed"`
	CompletedAt string  `json:"completed_at,omitempty"`
}

// CourseProgress is the rollup served by /progress/course/{id}.
type CourseProgress struct {
	CourseID         string  `json:"course_id"`
	CompletedLessons int     `json:"completed_lessons"`
	TotalLessons     int     `json:"total_lessons"`
	Percent          float64 `json:"percent"`
	Completed        bool    `json:"completed"`
	LastLessonID     string  `json:"last_lesson_id,omitempty"`
}

// DashboardStats backs the student dashboard header.
type DashboardStats struct {
	EnrolledCourses  int     `json:"enrolled_courses"`
	CompletedCourses int     `json:"completed_courses"`
	CompletedLessons int     `json:"completed_lessons"`
	WatchTimeMinutes float64 `json:"watch_time_minutes"`
	CurrentStreak    int     `json:"current_streak"`
}

// savedPosition is persisted locally per lesson so playback resumes
// even before the server round-trips.
type savedPosition struct {
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Completed bool    `json:"completed"`
}
