package router

import (
	"net/url"
	"strings"

	"github.com/trezcool/darasa/core/view"
)

// Meta carries the per-route flags the middleware chain gates on.
type Meta struct {
	Title        string
	RequiresAuth bool
	GuestOnly    bool
	Roles        []string // any-of; empty means no role gate
	AccessParam  string   // route param holding a course id to entitlement-check
}

// Route is one registered pattern. Patterns are compiled once at
// registration; matching never re-parses the pattern.
type Route struct {
	Pattern string
	Page    view.Page
	Meta    Meta

	segments []segment
	literal  bool
}

type segment struct {
	literal string
	param   string // set when the segment is a :capture
}

// compile splits a pattern into segments. A pattern with no captures is
// literal and matched by exact lookup.
func compile(pattern string) (segs []segment, literal bool) {
	literal = true
	for _, part := range splitPath(pattern) {
		if strings.HasPrefix(part, ":") {
			segs = append(segs, segment{param: part[1:]})
			literal = false
			continue
		}
		segs = append(segs, segment{literal: part})
	}
	return segs, literal
}

// match binds path segments to the pattern's captures, URL-decoding
// each captured value. Lengths must agree exactly; there is no
// wildcard tail.
func (r *Route) match(path string) (map[string]string, bool) {
	parts := splitPath(path)
	if len(parts) != len(r.segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range r.segments {
		if seg.param != "" {
			if params == nil {
				params = make(map[string]string)
			}
			val := parts[i]
			if dec, err := url.PathUnescape(val); err == nil {
				val = dec
			}
			params[seg.param] = val
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// normalize strips the query and trailing slash so "/courses/" and
// "/courses" hit the same route.
func normalize(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}
