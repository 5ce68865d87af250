// Package course fronts the catalog, enrollment and lesson-content
// endpoints. Catalog reads go through the response cache; anything
// tied to the user's own state does not.
package course

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/services/api"
)

// urlRenewMargin is how close to expiry a cached signed URL may get
// before the next read re-fetches it.
const urlRenewMargin = time.Minute

// Options configures a Service. Conf, Bus and API are required.
type Options struct {
	Conf   *core.Config
	Bus    *event.Bus
	API    *api.Client
	Logger core.Logger
}

type Service struct {
	conf *core.Config
	bus  *event.Bus
	api  *api.Client
	log  core.Logger

	mu         sync.Mutex
	signedURLs map[string]SignedURL // lesson ID -> live URL
}

func NewService(opts Options) *Service {
	return &Service{
		conf:       opts.Conf,
		bus:        opts.Bus,
		api:        opts.API,
		log:        opts.Logger,
		signedURLs: make(map[string]SignedURL),
	}
}

// Catalog

func (s *Service) Featured(ctx context.Context) ([]Course, error) {
	return s.list(ctx, api.EndpointFeaturedCourses)
}

func (s *Service) Popular(ctx context.Context) ([]Course, error) {
	return s.list(ctx, api.EndpointPopularCourses)
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var resp struct {
		Data []Category `json:"data"`
	}
	err := s.api.GetCached(ctx, api.EndpointCourseCategories, &resp)
	return resp.Data, err
}

func (s *Service) ByCategory(ctx context.Context, categoryID string) ([]Course, error) {
	return s.list(ctx, api.EndpointCoursesByCategory(categoryID))
}

// Search queries the catalog; empty filters list everything.
func (s *Service) Search(ctx context.Context, filters SearchFilters) ([]Course, error) {
	q := url.Values{}
	if filters.Query != "" {
		q.Set("q", filters.Query)
	}
	if filters.CategoryID != "" {
		q.Set("category", filters.CategoryID)
	}
	if filters.Level != "" {
		q.Set("level", filters.Level)
	}
	if filters.Page > 0 {
		q.Set("page", strconv.Itoa(filters.Page))
	}
	if filters.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(filters.PerPage))
	}
	path := api.EndpointSearchCourses
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return s.list(ctx, path)
}

// Get fetches full course detail including modules and lessons.
func (s *Service) Get(ctx context.Context, id string) (Course, error) {
	var resp struct {
		Data Course `json:"data"`
	}
	err := s.api.GetCached(ctx, api.EndpointCourse(id), &resp)
	return resp.Data, err
}

// GetBySlug resolves a course by its URL slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Course, error) {
	var resp struct {
		Data Course `json:"data"`
	}
	err := s.api.GetCached(ctx, api.EndpointCourseBySlug(slug), &resp)
	return resp.Data, err
}

// Enrollment

func (s *Service) Enroll(ctx context.Context, courseID string) error {
	return s.api.Post(ctx, api.EndpointEnroll(courseID), nil, nil)
}

func (s *Service) MyCourses(ctx context.Context) ([]Enrollment, error) {
	var resp struct {
		Data []Enrollment `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointMyCourses, &resp)
	return resp.Data, err
}

func (s *Service) ContinueWatching(ctx context.Context) ([]Enrollment, error) {
	var resp struct {
		Data []Enrollment `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointContinueWatching, &resp)
	return resp.Data, err
}

func (s *Service) CompletedCourses(ctx context.Context) ([]Enrollment, error) {
	var resp struct {
		Data []Enrollment `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointCompletedCourses, &resp)
	return resp.Data, err
}

// CheckAccess asks the server whether the user may open a course's
// content. Never cached; enrollment can change under us.
func (s *Service) CheckAccess(ctx context.Context, courseID string) (Access, error) {
	var resp struct {
		Data Access `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointCourseAccess(courseID), &resp)
	return resp.Data, err
}

// Lesson content

func (s *Service) Lesson(ctx context.Context, id string) (Lesson, error) {
	var resp struct {
		Data Lesson `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointLesson(id), &resp)
	return resp.Data, err
}

// VideoURL returns a signed playback URL, reusing the cached one until
// it nears expiry.
func (s *Service) VideoURL(ctx context.Context, lessonID string) (SignedURL, error) {
	return s.signedURL(ctx, lessonID, api.EndpointLessonVideoURL(lessonID))
}

// PDFURL returns a signed document URL.
func (s *Service) PDFURL(ctx context.Context, lessonID string) (SignedURL, error) {
	return s.signedURL(ctx, lessonID, api.EndpointLessonPDFURL(lessonID))
}

func (s *Service) signedURL(ctx context.Context, lessonID, path string) (SignedURL, error) {
	s.mu.Lock()
	cached, ok := s.signedURLs[lessonID]
	s.mu.Unlock()
	if ok && !cached.Expiring(urlRenewMargin) {
		return cached, nil
	}

	var resp struct {
		Data SignedURL `json:"data"`
	}
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return SignedURL{}, err
	}
	s.mu.Lock()
	s.signedURLs[lessonID] = resp.Data
	s.mu.Unlock()
	return resp.Data, nil
}

// Reviews & comments

func (s *Service) Reviews(ctx context.Context, courseID string) ([]Review, error) {
	var resp struct {
		Data []Review `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointCourseReviews(courseID), &resp)
	return resp.Data, err
}

func (s *Service) SubmitReview(ctx context.Context, courseID string, form ReviewForm) (Review, error) {
	var resp struct {
		Data Review `json:"data"`
	}
	if err := core.TranslateValidationErrors(core.Validate.Struct(form)); err != nil {
		return Review{}, err
	}
	err := s.api.Post(ctx, api.EndpointCourseReviews(courseID), form, &resp)
	return resp.Data, err
}

func (s *Service) Comments(ctx context.Context, lessonID string) ([]Comment, error) {
	var resp struct {
		Data []Comment `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointLessonComments(lessonID), &resp)
	return resp.Data, err
}

func (s *Service) PostComment(ctx context.Context, lessonID string, form CommentForm) (Comment, error) {
	var resp struct {
		Data Comment `json:"data"`
	}
	if err := core.TranslateValidationErrors(core.Validate.Struct(form)); err != nil {
		return Comment{}, err
	}
	err := s.api.Post(ctx, api.EndpointLessonComments(lessonID), form, &resp)
	return resp.Data, err
}

// Quizzes

func (s *Service) Quiz(ctx context.Context, id string) (Quiz, error) {
	var resp struct {
		Data Quiz `json:"data"`
	}
	err := s.api.Get(ctx, api.EndpointQuiz(id), &resp)
	return resp.Data, err
}

// SubmitQuiz grades a submission server-side. A course completed by
// this submission comes back in the payload and is announced on the
// bus.
func (s *Service) SubmitQuiz(ctx context.Context, quizID string, sub QuizSubmission) (QuizResult, error) {
	var resp struct {
		Data struct {
			QuizResult
			CourseCompleted bool   `json:"course_completed"`
			CourseID        string `json:"course_id"`
			CourseTitle     string `json:"course_title"`
		} `json:"data"`
	}
	if err := core.TranslateValidationErrors(core.Validate.Struct(sub)); err != nil {
		return QuizResult{}, err
	}
	if err := s.api.Post(ctx, api.EndpointQuizSubmit(quizID), sub, &resp); err != nil {
		return QuizResult{}, err
	}
	if resp.Data.CourseCompleted {
		s.bus.Publish(event.CourseCompleted{CourseID: resp.Data.CourseID, Title: resp.Data.CourseTitle})
	}
	return resp.Data.QuizResult, nil
}

func (s *Service) RetryQuiz(ctx context.Context, quizID string) error {
	return s.api.Post(ctx, api.EndpointQuizRetry(quizID), nil, nil)
}

func (s *Service) list(ctx context.Context, path string) ([]Course, error) {
	var resp struct {
		Data []Course `json:"data"`
	}
	err := s.api.GetCached(ctx, path, &resp)
	return resp.Data, err
}
