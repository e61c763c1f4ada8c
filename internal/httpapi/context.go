package httpapi

import "context"

// baseCtx is canceled when the daemon begins shutdown. Handlers join it
// with their request context so in-flight dispatches stop on either side.
var baseCtx = context.Background()

// SetBaseContext installs the daemon's shutdown context. A nil ctx resets
// to Background. Call before the server starts accepting requests.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseCtx = ctx
}

// joinContexts derives from req, keeping its request-scoped values and
// deadline, and additionally cancels when base is done. The returned
// cancel must be called when the handler returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	detach := context.AfterFunc(base, cancel)
	return ctx, func() {
		detach()
		cancel()
	}
}
