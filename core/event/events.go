package event

// Topics.
const (
	TopicLogin           Topic = "auth:login"
	TopicLogout          Topic = "auth:logout"
	TopicSessionExpired  Topic = "auth:session-expired"
	TopicSessionConflict Topic = "auth:session-conflict"

	TopicUserUpdated        Topic = "user:updated"
	TopicPreferencesChanged Topic = "user:preferences-changed"
	TopicThemeChanged       Topic = "ui:theme-changed"

	TopicRouteChanged Topic = "route:changed"
	TopicPageLoaded   Topic = "page:loaded"

	TopicLessonProgress  Topic = "lesson:progress"
	TopicLessonCompleted Topic = "lesson:completed"
	TopicCourseCompleted Topic = "course:completed"

	TopicOnline  Topic = "network:online"
	TopicOffline Topic = "network:offline"

	TopicAPIError Topic = "api:error"
)

type Login struct {
	UserID string
	Email  string
}

func (Login) Topic() Topic { return TopicLogin }

type Logout struct{}

func (Logout) Topic() Topic { return TopicLogout }

// SessionExpired signals an irrecoverable 401: the refresh path failed.
type SessionExpired struct{}

func (SessionExpired) Topic() Topic { return TopicSessionExpired }

// SessionConflict signals the session was superseded on another device.
type SessionConflict struct{}

func (SessionConflict) Topic() Topic { return TopicSessionConflict }

type UserUpdated struct {
	UserID string
}

func (UserUpdated) Topic() Topic { return TopicUserUpdated }

type PreferencesChanged struct {
	Preferences map[string]interface{}
}

func (PreferencesChanged) Topic() Topic { return TopicPreferencesChanged }

type ThemeChanged struct {
	Theme string
}

func (ThemeChanged) Topic() Topic { return TopicThemeChanged }

type RouteChanged struct {
	Path   string
	Params map[string]string
	Query  map[string]string
}

func (RouteChanged) Topic() Topic { return TopicRouteChanged }

type PageLoaded struct {
	Path  string
	Title string
}

func (PageLoaded) Topic() Topic { return TopicPageLoaded }

type LessonProgress struct {
	LessonID       string
	Percentage     int
	WatchedSeconds int
	TotalSeconds   int
}

func (LessonProgress) Topic() Topic { return TopicLessonProgress }

type LessonCompleted struct {
	LessonID string
}

func (LessonCompleted) Topic() Topic { return TopicLessonCompleted }

type CourseCompleted struct {
	CourseID string
	Title    string
}

func (CourseCompleted) Topic() Topic { return TopicCourseCompleted }

type Online struct{}

func (Online) Topic() Topic { return TopicOnline }

type Offline struct{}

func (Offline) Topic() Topic { return TopicOffline }

type APIError struct {
	Status int
	Err    error
}

func (APIError) Topic() Topic { return TopicAPIError }
