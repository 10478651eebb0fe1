package mid

import (
	"context"
	"expvar"
	"net/http"
	"runtime"

	"github.com/ardanlabs/sealedger/foundation/web"
)

// m contains the global program counters for the application, exposed at
// /debug/vars by the debug mux.
var m = struct {
	req *expvar.Int
	err *expvar.Int
	gr  *expvar.Int
}{
	req: expvar.NewInt("requests"),
	err: expvar.NewInt("errors"),
	gr:  expvar.NewInt("goroutines"),
}

// Metrics updates program counters on every request.
func Metrics() web.Middleware {
	f := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			m.req.Add(1)

			if m.req.Value()%1000 == 0 {
				m.gr.Set(int64(runtime.NumGoroutine()))
			}

			if err != nil {
				m.err.Add(1)
			}

			return err
		}

		return h
	}

	return f
}
