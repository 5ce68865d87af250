package api

import "fmt"

// REST surface consumed by the client, centralized so services never
// build paths ad hoc.

// Auth
const (
	EndpointLogin          = "/auth/login"
	EndpointRegister       = "/auth/register"
	EndpointLogout         = "/auth/logout"
	EndpointRefresh        = "/auth/refresh"
	EndpointForgotPassword = "/auth/forgot-password"
	EndpointResetPassword  = "/auth/reset-password"
	EndpointCheckSession   = "/auth/check-session"
)

// User
const (
	EndpointProfile       = "/user/profile"
	EndpointPassword      = "/user/password"
	EndpointAvatar        = "/user/avatar"
	EndpointDeleteAccount = "/user/delete-account"
)

// Courses & catalog
const (
	EndpointCourses          = "/courses"
	EndpointFeaturedCourses  = "/courses/featured"
	EndpointPopularCourses   = "/courses/popular"
	EndpointSearchCourses    = "/courses/search"
	EndpointCourseCategories = "/courses/categories"
)

func EndpointCourse(id string) string { return fmt.Sprintf("/courses/%s", id) }
func EndpointCourseBySlug(slug string) string { return fmt.Sprintf("/courses/slug/%s", slug) }
func EndpointCoursesByCategory(id string) string { return fmt.Sprintf("/courses/category/%s", id) }
func EndpointCourseModules(id string) string { return fmt.Sprintf("/courses/%s/modules", id) }
func EndpointCourseReviews(id string) string { return fmt.Sprintf("/courses/%s/reviews", id) }

// Enrollments
const (
	EndpointMyCourses        = "/enrollments/my-courses"
	EndpointContinueWatching = "/enrollments/continue"
	EndpointCompletedCourses = "/enrollments/completed"
)

func EndpointEnroll(courseID string) string { return fmt.Sprintf("/enrollments/%s", courseID) }
func EndpointCourseAccess(courseID string) string { return fmt.Sprintf("/enrollments/%s/access", courseID) }

// Lessons
func EndpointLesson(id string) string { return fmt.Sprintf("/lessons/%s", id) }
func EndpointLessonVideoURL(id string) string { return fmt.Sprintf("/lessons/%s/video-url", id) }
func EndpointLessonPDFURL(id string) string { return fmt.Sprintf("/lessons/%s/pdf-url", id) }
func EndpointLessonComplete(id string) string { return fmt.Sprintf("/lessons/%s/complete", id) }
func EndpointLessonComments(id string) string { return fmt.Sprintf("/lessons/%s/comments", id) }

// Progress
const EndpointProgressBatch = "/progress/batch"

func EndpointCourseProgress(id string) string { return fmt.Sprintf("/progress/course/%s", id) }
func EndpointLessonProgress(id string) string { return fmt.Sprintf("/progress/lesson/%s", id) }

// Quiz
func EndpointQuiz(id string) string { return fmt.Sprintf("/quiz/%s", id) }
func EndpointQuizSubmit(id string) string { return fmt.Sprintf("/quiz/%s/submit", id) }
func EndpointQuizRetry(id string) string { return fmt.Sprintf("/quiz/%s/retry", id) }

// Misc
const (
	EndpointAnalyticsEvent = "/analytics/event"
	EndpointDashboardStats = "/dashboard/stats"
)
