// Package web contains a small set of types and functions to help with
// writing HTTP handlers that return an error, and a thin wrapper around
// httptreemux that binds those handlers with a per-request context value and
// a chain of middleware: web.NewApp, web.GetValues, web.Respond, web.Decode,
// web.Param, and web.NewShutdownError.
package web

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
)

// A Handler is a type that handles an http request within our own little
// mini framework.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware is a function designed to run some code before and/or after
// another Handler, returning a new Handler that wraps the one passed in.
type Middleware func(Handler) Handler

// ctxKey represents the type of value for the context key.
type ctxKey int

// KeyValues is used to store/retrieve a Values value from a context.Context.
const KeyValues ctxKey = 1

// Values carries information about each request.
type Values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
}

// App is the entrypoint into our application and what configures our
// context object for each of our http handlers. It is a thin wrapper
// around httptreemux.
type App struct {
	*httptreemux.ContextMux
	shutdown chan os.Signal
	mw       []Middleware
}

// NewApp creates an App value that handles a set of routes for the
// application, wired with the given global middleware.
func NewApp(shutdown chan os.Signal, mw ...Middleware) *App {
	return &App{
		ContextMux: httptreemux.NewContextMux(),
		shutdown:   shutdown,
		mw:         mw,
	}
}

// SignalShutdown is used to gracefully shut down the app when an integrity
// issue is identified.
func (a *App) SignalShutdown() {
	a.shutdown <- os.Interrupt
}

// Handle sets a handler function for a given HTTP method and path pair to
// the application's mux. group is used only to build the full route (for
// example "v1"); it may be empty.
func (a *App) Handle(method string, group string, path string, handler Handler, mw ...Middleware) {

	// Wrap the route specific middleware first, closest to the handler, then
	// the application wide middleware.
	handler = wrapMiddleware(mw, handler)
	handler = wrapMiddleware(a.mw, handler)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		v := Values{
			TraceID: uuid.NewString(),
			Now:     time.Now().UTC(),
		}
		ctx = context.WithValue(ctx, KeyValues, &v)

		if err := handler(ctx, w, r); err != nil {
			if IsShutdown(err) {
				a.SignalShutdown()
			}
		}
	}

	finalPath := path
	if group != "" {
		finalPath = "/" + group + path
	}

	a.ContextMux.Handle(method, finalPath, h)
}

// wrapMiddleware wraps a handler with the given middleware, applying them in
// reverse order so the first middleware in the slice runs first.
func wrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			handler = mw[i](handler)
		}
	}

	return handler
}

