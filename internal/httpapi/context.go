package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx is canceled on shutdown; in-flight loads and predictions
// observe it through requestContext.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context. nil resets it.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// shuttingDown reports whether the base context is done.
func shuttingDown() bool { return serverBaseCtx.Err() != nil }

// requestContext derives the context for a load or predict call: it ends
// when the client goes away, when the server shuts down, or after the
// configured predict timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(serverBaseCtx, cancel)
	release := func() {
		stop()
		cancel()
	}
	if predictTimeout <= 0 {
		return ctx, release
	}
	tctx, tcancel := context.WithTimeout(ctx, predictTimeout)
	return tctx, func() {
		tcancel()
		release()
	}
}

// requestAborted reports whether the caller or the server gave up on r,
// in which case there is nobody left to answer.
func requestAborted(r *http.Request) bool {
	return r.Context().Err() != nil || shuttingDown()
}
