// Package pages builds the view-model tree for every route. Pages pull
// from the domain services and never talk to the API client directly.
package pages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/progress"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/view"
)

// Pages carries the service dependencies shared by all routes.
type Pages struct {
	Sessions *session.Service
	Users    *user.Service
	Courses  *course.Service
	Progress *progress.Service
	Log      core.Logger
}

func courseCard(c course.Course) view.Node {
	return view.El("article", map[string]string{"class": "course-card", "data-id": c.ID},
		view.El("img", map[string]string{"src": c.ThumbnailURL, "alt": c.Title}),
		view.El("h3", nil, view.Text(c.Title)),
		view.El("p", map[string]string{"class": "instructor"}, view.Text(c.Instructor)),
		view.El("span", map[string]string{"class": "rating"},
			view.Text(fmt.Sprintf("%.1f (%d)", c.Rating, c.RatingCount))))
}

func courseGrid(title string, courses []course.Course) view.Node {
	cards := make([]view.Node, 0, len(courses)+1)
	cards = append(cards, view.El("h2", nil, view.Text(title)))
	for _, c := range courses {
		cards = append(cards, courseCard(c))
	}
	return view.El("section", map[string]string{"class": "course-grid"}, cards...)
}

// Home shows the featured and popular shelves.
func (p *Pages) Home() view.Page {
	return view.Func{
		PageTitle: "Darasa",
		RenderFn: func(ctx context.Context, _, _ map[string]string) (view.Node, error) {
			featured, err := p.Courses.Featured(ctx)
			if err != nil {
				return view.Node{}, err
			}
			popular, err := p.Courses.Popular(ctx)
			if err != nil {
				return view.Node{}, err
			}
			return view.El("main", map[string]string{"class": "home"},
				courseGrid("Featured", featured),
				courseGrid("Popular", popular)), nil
		},
	}
}

// Catalog lists the whole catalog, optionally narrowed by query.
func (p *Pages) Catalog() view.Page {
	return view.Func{
		PageTitle: "Courses",
		RenderFn: func(ctx context.Context, _, query map[string]string) (view.Node, error) {
			filters := course.SearchFilters{
				Query:      query["q"],
				CategoryID: query["category"],
				Level:      query["level"],
			}
			if page, err := strconv.Atoi(query["page"]); err == nil {
				filters.Page = page
			}
			courses, err := p.Courses.Search(ctx, filters)
			if err != nil {
				return view.Node{}, err
			}
			return view.El("main", map[string]string{"class": "catalog"},
				courseGrid("All Courses", courses)), nil
		},
	}
}

// CourseDetail shows a course's curriculum, reviews and, when the
// viewer is enrolled, their progress.
func (p *Pages) CourseDetail() view.Page {
	return view.Func{
		PageTitle: "Course",
		RenderFn: func(ctx context.Context, params, _ map[string]string) (view.Node, error) {
			c, err := p.Courses.Get(ctx, params["id"])
			if err != nil {
				return view.Node{}, err
			}

			children := []view.Node{
				view.El("h1", nil, view.Text(c.Title)),
				view.El("p", map[string]string{"class": "description"}, view.Text(c.Description)),
			}

			if p.Sessions.Authenticated() {
				if prog, err := p.Progress.CourseProgress(ctx, c.ID); err == nil {
					children = append(children, view.El("div", map[string]string{
						"class": "progress-bar",
						"value": fmt.Sprintf("%.0f", prog.Percent),
					}))
				}
			}

			for _, m := range c.Modules {
				lessons := make([]view.Node, 0, len(m.Lessons))
				for _, l := range m.Lessons {
					lessons = append(lessons, view.El("li", map[string]string{
						"data-lesson": l.ID, "data-kind": l.Kind,
					}, view.Text(l.Title)))
				}
				children = append(children,
					view.El("section", map[string]string{"class": "module"},
						view.El("h3", nil, view.Text(m.Title)),
						view.El("ul", nil, lessons...)))
			}

			if reviews, err := p.Courses.Reviews(ctx, c.ID); err == nil {
				nodes := make([]view.Node, 0, len(reviews))
				for _, r := range reviews {
					nodes = append(nodes, view.El("blockquote", map[string]string{
						"data-rating": strconv.Itoa(r.Rating),
					}, view.Text(r.Body)))
				}
				children = append(children,
					view.El("section", map[string]string{"class": "reviews"}, nodes...))
			}

			return view.El("main", map[string]string{"class": "course-detail", "data-id": c.ID},
				children...), nil
		},
	}
}

// Lesson is the player page: access check, signed media URL, resume
// position and comments.
func (p *Pages) Lesson() view.Page {
	return view.Func{
		PageTitle: "Lesson",
		RenderFn: func(ctx context.Context, params, _ map[string]string) (view.Node, error) {
			courseID, lessonID := params["cid"], params["lid"]

			access, err := p.Courses.CheckAccess(ctx, courseID)
			if err != nil {
				return view.Node{}, err
			}
			if !access.Allowed {
				return view.El("main", map[string]string{"class": "lesson-locked"},
					view.El("h1", nil, view.Text("Enroll to watch this lesson")),
					view.El("p", nil, view.Text(access.Reason))), nil
			}

			lesson, err := p.Courses.Lesson(ctx, lessonID)
			if err != nil {
				return view.Node{}, err
			}

			var player view.Node
			switch lesson.Kind {
			case course.LessonVideo:
				signed, err := p.Courses.VideoURL(ctx, lessonID)
				if err != nil {
					return view.Node{}, err
				}
				attrs := map[string]string{"class": "player", "src": signed.URL}
				if pos, ok := p.Progress.LastPosition(lessonID); ok {
					attrs["data-resume"] = fmt.Sprintf("%.0f", pos)
				}
				player = view.El("video", attrs)
			case course.LessonPDF:
				signed, err := p.Courses.PDFURL(ctx, lessonID)
				if err != nil {
					return view.Node{}, err
				}
				player = view.El("iframe", map[string]string{"class": "pdf-viewer", "src": signed.URL})
			default:
				player = view.El("div", map[string]string{"class": "quiz-entry", "data-quiz": lessonID})
			}

			children := []view.Node{
				view.El("h1", nil, view.Text(lesson.Title)),
				player,
			}
			if comments, err := p.Courses.Comments(ctx, lessonID); err == nil {
				nodes := make([]view.Node, 0, len(comments))
				for _, c := range comments {
					nodes = append(nodes, view.El("li", map[string]string{"data-user": c.UserName},
						view.Text(c.Body)))
				}
				children = append(children,
					view.El("ul", map[string]string{"class": "comments"}, nodes...))
			}

			return view.El("main", map[string]string{
				"class": "lesson", "data-course": courseID, "data-lesson": lessonID,
			}, children...), nil
		},
	}
}

// Dashboard is the signed-in landing page.
func (p *Pages) Dashboard() view.Page {
	return view.Func{
		PageTitle: "Dashboard",
		RenderFn: func(ctx context.Context, _, _ map[string]string) (view.Node, error) {
			usr, _ := p.Sessions.CurrentUser()

			stats, err := p.Progress.DashboardStats(ctx)
			if err != nil {
				return view.Node{}, err
			}
			continuing, err := p.Courses.ContinueWatching(ctx)
			if err != nil {
				return view.Node{}, err
			}

			shelves := make([]view.Node, 0, len(continuing))
			for _, e := range continuing {
				shelves = append(shelves, courseCard(e.Course))
			}

			return view.El("main", map[string]string{"class": "dashboard"},
				view.El("h1", nil, view.Text("Welcome back, "+usr.Name)),
				view.El("div", map[string]string{"class": "stats"},
					view.El("span", map[string]string{"data-stat": "enrolled"},
						view.Text(strconv.Itoa(stats.EnrolledCourses))),
					view.El("span", map[string]string{"data-stat": "completed"},
						view.Text(strconv.Itoa(stats.CompletedCourses))),
					view.El("span", map[string]string{"data-stat": "streak"},
						view.Text(strconv.Itoa(stats.CurrentStreak)))),
				view.El("section", map[string]string{"class": "continue-watching"}, shelves...)), nil
		},
	}
}

// MyCourses lists the viewer's enrollments.
func (p *Pages) MyCourses() view.Page {
	return view.Func{
		PageTitle: "My Courses",
		RenderFn: func(ctx context.Context, _, _ map[string]string) (view.Node, error) {
			enrollments, err := p.Courses.MyCourses(ctx)
			if err != nil {
				return view.Node{}, err
			}
			cards := make([]view.Node, 0, len(enrollments))
			for _, e := range enrollments {
				cards = append(cards, courseCard(e.Course))
			}
			return view.El("main", map[string]string{"class": "my-courses"}, cards...), nil
		},
	}
}

// Profile shows the account page.
func (p *Pages) Profile() view.Page {
	return view.Func{
		PageTitle: "Profile",
		RenderFn: func(ctx context.Context, _, _ map[string]string) (view.Node, error) {
			usr, err := p.Users.Profile(ctx)
			if err != nil {
				return view.Node{}, err
			}
			return view.El("main", map[string]string{"class": "profile"},
				view.El("img", map[string]string{"src": usr.AvatarURL, "class": "avatar"}),
				view.El("h1", nil, view.Text(usr.Name)),
				view.El("p", nil, view.Text(usr.Email)),
				view.El("span", map[string]string{"class": "role"}, view.Text(usr.Role))), nil
		},
	}
}

// Login renders the sign-in form. Query flags surface why the user
// landed here.
func (p *Pages) Login() view.Page {
	return view.Func{
		PageTitle: "Sign In",
		RenderFn: func(_ context.Context, _, query map[string]string) (view.Node, error) {
			children := []view.Node{view.El("h1", nil, view.Text("Sign In"))}
			switch {
			case query["reason"] == "conflict":
				children = append(children, view.El("p", map[string]string{"class": "notice conflict"},
					view.Text("You signed in on another device; this session was signed out.")))
			case query["session"] == "expired":
				children = append(children, view.El("p", map[string]string{"class": "notice expired"},
					view.Text("Your session expired, sign in again.")))
			}
			form := view.El("form", map[string]string{"data-redirect": query["redirect"]},
				view.El("input", map[string]string{"name": "email", "type": "email"}),
				view.El("input", map[string]string{"name": "password", "type": "password"}),
				view.El("button", map[string]string{"type": "submit"}, view.Text("Sign In")))
			children = append(children, form)
			return view.El("main", map[string]string{"class": "login"}, children...), nil
		},
	}
}

// Register renders the account-creation form.
func (p *Pages) Register() view.Page {
	return view.Func{
		PageTitle: "Create Account",
		RenderFn: func(context.Context, map[string]string, map[string]string) (view.Node, error) {
			return view.El("main", map[string]string{"class": "register"},
				view.El("h1", nil, view.Text("Create Account")),
				view.El("form", nil,
					view.El("input", map[string]string{"name": "name"}),
					view.El("input", map[string]string{"name": "email", "type": "email"}),
					view.El("input", map[string]string{"name": "password", "type": "password"}),
					view.El("button", map[string]string{"type": "submit"}, view.Text("Sign Up")))), nil
		},
	}
}

// ForgotPassword renders the reset-request form.
func (p *Pages) ForgotPassword() view.Page {
	return view.Func{
		PageTitle: "Forgot Password",
		RenderFn: func(context.Context, map[string]string, map[string]string) (view.Node, error) {
			return view.El("main", map[string]string{"class": "forgot-password"},
				view.El("h1", nil, view.Text("Reset your password")),
				view.El("form", nil,
					view.El("input", map[string]string{"name": "email", "type": "email"}),
					view.El("button", map[string]string{"type": "submit"}, view.Text("Send reset link")))), nil
		},
	}
}

// Quiz renders one quiz with its questions.
func (p *Pages) Quiz() view.Page {
	return view.Func{
		PageTitle: "Quiz",
		RenderFn: func(ctx context.Context, params, _ map[string]string) (view.Node, error) {
			quiz, err := p.Courses.Quiz(ctx, params["id"])
			if err != nil {
				return view.Node{}, err
			}
			questions := make([]view.Node, 0, len(quiz.Questions))
			for i, q := range quiz.Questions {
				options := make([]view.Node, 0, len(q.Options))
				for j, opt := range q.Options {
					options = append(options, view.El("li", map[string]string{
						"data-option": strconv.Itoa(j),
					}, view.Text(opt)))
				}
				questions = append(questions,
					view.El("fieldset", map[string]string{"data-question": q.ID},
						view.El("legend", nil, view.Text(fmt.Sprintf("%d. %s", i+1, q.Prompt))),
						view.El("ol", nil, options...)))
			}
			return view.El("main", map[string]string{"class": "quiz", "data-id": quiz.ID},
				view.El("h1", nil, view.Text(quiz.Title)),
				view.El("form", nil, questions...)), nil
		},
	}
}
