package router

import "sync"

// History abstracts the navigation stack so hosts can plug in whatever
// their platform provides.
type History interface {
	Push(path string)
	Replace(path string)
	Current() string
	Back() (string, bool)
}

// memoryHistory is the default in-process stack.
type memoryHistory struct {
	mu    sync.Mutex
	stack []string
}

func NewMemoryHistory() History {
	return &memoryHistory{}
}

func (h *memoryHistory) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack = append(h.stack, path)
}

func (h *memoryHistory) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		h.stack = append(h.stack, path)
		return
	}
	h.stack[len(h.stack)-1] = path
}

func (h *memoryHistory) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		return ""
	}
	return h.stack[len(h.stack)-1]
}

func (h *memoryHistory) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) < 2 {
		return "", false
	}
	h.stack = h.stack[:len(h.stack)-1]
	return h.stack[len(h.stack)-1], true
}
