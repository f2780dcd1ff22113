package pg

import (
	"strings"
	"sync"

	"github.com/flanksource/hse/context"
)

type routeExtractorFn func(string) (string, string, error)

// defaultRouteExtractor splits "<route> <...optional payload>".
func defaultRouteExtractor(payload string) (string, string, error) {
	fields := strings.Fields(payload)
	return fields[0], strings.Join(fields[1:], " "), nil
}

// notifyRouter fans a single LISTEN channel out to one go channel per
// group of event names.
type notifyRouter struct {
	mu             sync.RWMutex
	registry       map[string]chan string
	routeExtractor routeExtractorFn
}

func NewNotifyRouter() *notifyRouter {
	return &notifyRouter{
		registry:       make(map[string]chan string),
		routeExtractor: defaultRouteExtractor,
	}
}

// RegisterRoutes returns one channel shared by all the given routes. If a
// route is already registered its channel is reused for the whole group, so
// groups must not overlap.
func (t *notifyRouter) RegisterRoutes(routes ...string) <-chan string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan string)
	for _, route := range routes {
		if existing, ok := t.registry[route]; ok {
			ch = existing
		}
	}

	for _, route := range routes {
		t.registry[route] = ch
	}
	return ch
}

// Run listens on the postgres channel and routes notifications until ctx is done.
func (t *notifyRouter) Run(ctx context.Context, channel string) {
	notifications := make(chan string)
	go func() {
		if err := Listen(ctx, channel, notifications); err != nil {
			ctx.Errorf("stopped listening on %s: %v", channel, err)
		}
		close(notifications)
	}()

	t.consume(notifications)
}

func (t *notifyRouter) consume(notifications <-chan string) {
	for payload := range notifications {
		if strings.TrimSpace(payload) == "" {
			continue
		}

		route, extracted, err := t.routeExtractor(payload)
		if err != nil {
			continue
		}

		t.mu.RLock()
		ch, ok := t.registry[route]
		t.mu.RUnlock()
		if !ok {
			continue
		}

		// consumers may be busy draining the queue, never block the listener
		go func() {
			ch <- extracted
		}()
	}
}
