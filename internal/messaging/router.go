package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dorshemer/yoman/internal/models"
)

// DefaultUserQueueSize bounds the per-user inbound queue.
const DefaultUserQueueSize = 16

// MessageHandler processes one inbound message for one user.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string) error
}

// Router pumps inbound responses from a Service into a MessageHandler.
//
// Messages from the same user are handled strictly in order on a dedicated
// goroutine; messages from different users are handled concurrently.
type Router struct {
	svc     Service
	handler MessageHandler

	mu     sync.Mutex
	queues map[string]chan models.Response
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewRouter creates a router dispatching svc responses to handler.
func NewRouter(svc Service, handler MessageHandler) *Router {
	return &Router{
		svc:     svc,
		handler: handler,
		queues:  make(map[string]chan models.Response),
		done:    make(chan struct{}),
	}
}

// Start begins consuming responses. It returns immediately; dispatch runs
// until the service's response channel closes or ctx is cancelled.
func (r *Router) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-r.svc.Responses():
				if !ok {
					return
				}
				r.dispatch(ctx, resp)
			}
		}
	}()
	slog.Info("Router.Start: inbound dispatch running")
}

// Stop waits for in-flight messages to finish and releases per-user queues.
func (r *Router) Stop() {
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	for user, q := range r.queues {
		close(q)
		delete(r.queues, user)
	}
	r.mu.Unlock()
	r.wg.Wait()
	slog.Info("Router.Stop: dispatch stopped")
}

// dispatch enqueues the response on the sender's queue, creating the queue
// and its worker on first contact.
func (r *Router) dispatch(ctx context.Context, resp models.Response) {
	canonical, err := r.svc.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		slog.Warn("Router.dispatch: dropping message from invalid sender", "from", resp.From, "error", err)
		return
	}
	resp.From = canonical

	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return
	default:
	}
	q, ok := r.queues[canonical]
	if !ok {
		q = make(chan models.Response, DefaultUserQueueSize)
		r.queues[canonical] = q
		r.wg.Add(1)
		go r.serveUser(ctx, canonical, q)
	}
	r.mu.Unlock()

	select {
	case q <- resp:
	default:
		slog.Warn("Router.dispatch: user queue full, dropping message", "user", canonical)
	}
}

// serveUser handles one user's messages sequentially.
func (r *Router) serveUser(ctx context.Context, user string, q <-chan models.Response) {
	defer r.wg.Done()
	for resp := range q {
		if err := r.handler.HandleMessage(ctx, resp.From, resp.Body); err != nil {
			slog.Error("Router.serveUser: handler failed", "user", user, "error", err)
		}
	}
}
