package copilot

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/dshills/copilot-bridge/internal/logging"
)

// Handler processes one server notification. It returns true when it
// claims the notification, stopping further dispatch.
type Handler func(method string, params json.RawMessage) (bool, error)

// diagnosticMethods are server notifications that need no handler;
// they are logged and considered delivered.
var diagnosticMethods = map[string]struct{}{
	NotifyWindowLogMessage:          {},
	NotifyLogMessage:                {},
	NotifyStatus:                    {},
	NotifyFeatureFlags:              {},
	NotifyConversationPreconditions: {},
}

// Dispatcher routes server-initiated notifications to registered
// handlers. Handlers are keyed so a logical subscriber can replace
// its registration idempotently. Registration may happen concurrently
// with dispatch; dispatch iterates a snapshot.
//
// When a handler fails, dispatch continues with the remaining
// handlers; the failure surfaces only if no handler ultimately claims
// the notification.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *logging.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Null
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger.WithComponent("dispatcher"),
	}
}

// Register adds or replaces the handler stored under key.
func (d *Dispatcher) Register(key string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key] = h
}

// Unregister removes the handler stored under key.
func (d *Dispatcher) Unregister(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, key)
}

// Dispatch offers the notification to every registered handler in
// stable key order until one claims it. Unclaimed diagnostic methods
// are logged; any other unclaimed method is a HandlerUnavailableError.
func (d *Dispatcher) Dispatch(method string, params json.RawMessage) error {
	d.mu.RLock()
	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	snapshot := make([]Handler, len(keys))
	for i, k := range keys {
		snapshot[i] = d.handlers[k]
	}
	d.mu.RUnlock()

	var firstErr error
	for i, h := range snapshot {
		handled, err := h(method, params)
		if err != nil {
			d.logger.Warn("handler %q failed for %s: %v", keys[i], method, err)
			if firstErr == nil {
				firstErr = &DispatchError{Method: method, Err: err}
			}
			continue
		}
		if handled {
			return nil
		}
	}

	if firstErr != nil {
		return firstErr
	}

	if _, ok := diagnosticMethods[method]; ok {
		d.logger.Debug("%s: %s", method, truncateForLog(params))
		return nil
	}
	return &HandlerUnavailableError{Method: method}
}

func truncateForLog(params json.RawMessage) string {
	const limit = 512
	if len(params) == 0 {
		return "N/A"
	}
	if len(params) > limit {
		return string(params[:limit]) + "..."
	}
	return string(params)
}
