package course

import "time"

// Course is the catalog entry; detail endpoints fill Modules in.
type Course struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	CategoryID   string   `json:"category_id"`
	InstructorID string   `json:"instructor_id"`
	Instructor   string   `json:"instructor"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Price        float64  `json:"price"`
	Rating       float64  `json:"rating"`
	RatingCount  int      `json:"rating_count"`
	StudentCount int      `json:"student_count"`
	LessonCount  int      `json:"lesson_count"`
	Level        string   `json:"level"`
	Tags         []string `json:"tags,omitempty"`
	Modules      []Module `json:"modules,omitempty"`
}

// Module groups lessons inside a course.
type Module struct {
	ID       string   `json:"id"`
	CourseID string   `json:"course_id"`
	Title    string   `json:"title"`
	Position int      `json:"position"`
	Lessons  []Lesson `json:"lessons,omitempty"`
}

// Lesson kinds.
const (
	LessonVideo = "video"
	LessonPDF   = "pdf"
	LessonQuiz  = "quiz"
)

type Lesson struct {
	ID       string  `json:"id"`
	ModuleID string  `json:"module_id"`
	Title    string  `json:"title"`
	Kind     string  `json:"kind"`
	Duration float64 `json:"duration,omitempty"` // seconds, video only
	Position int     `json:"position"`
	Preview  bool    `json:"preview"` // watchable without enrollment
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	CourseCount int    `json:"course_count"`
}

// Enrollment links the current user to a course.
type Enrollment struct {
	CourseID   string    `json:"course_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Course     Course    `json:"course"`
}

// Access is the server's verdict on whether the user may open a
// course's content.
type Access struct {
	CourseID string `json:"course_id"`
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
}

// SignedURL is a time-limited media URL. Renew before ExpiresAt or the
// CDN starts returning 403s mid-playback.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expiring reports whether the URL is within margin of expiry.
func (u SignedURL) Expiring(margin time.Duration) bool {
	return time.Until(u.ExpiresAt) <= margin
}

type Review struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	LessonID  string    `json:"lesson_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Body      string    `json:"body"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Quiz as served to the client; correct answers never leave the server.
type Quiz struct {
	ID           string     `json:"id"`
	LessonID     string     `json:"lesson_id"`
	Title        string     `json:"title"`
	PassingScore int        `json:"passing_score"` // percent
	MaxAttempts  int        `json:"max_attempts"`
	Questions    []Question `json:"questions"`
}

type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QuizResult is the graded outcome of a submission.
type QuizResult struct {
	QuizID       string `json:"quiz_id"`
	Score        int    `json:"score"` // percent
	Passed       bool   `json:"passed"`
	AttemptsLeft int    `json:"attempts_left"`
}

// SearchFilters narrow a catalog search.
type SearchFilters struct {
	Query      string
	CategoryID string
	Level      string
	Page       int
	PerPage    int
}

// Forms

type ReviewForm struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Body   string `json:"body" validate:"max=2000"`
}

type CommentForm struct {
	Body     string `json:"body" validate:"required,max=2000"`
	ParentID string `json:"parent_id,omitempty"`
}

type QuizSubmission struct {
	Answers map[string]int `json:"answers" validate:"required"` // question ID -> option index
}
