package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/r3labs/sse/v2"

	"github.com/rendis/flowdesk/pkg/schema"
)

// TailOptions configures Tail.
type TailOptions struct {
	Headers map[string]string
	Logger  *slog.Logger
}

// Tail consumes a workbench SSE stream and calls fn for every editor event
// until ctx is cancelled or fn returns an error. Frames whose data is not an
// editor event are skipped. The underlying client reconnects on its own.
func Tail(ctx context.Context, url string, opts TailOptions, fn func(schema.EditorEvent) error) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := sse.NewClient(url)
	for k, v := range opts.Headers {
		client.Headers[k] = v
	}

	tailCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		fnErr error
	)
	err := client.SubscribeRawWithContext(tailCtx, func(msg *sse.Event) {
		if len(msg.Data) == 0 || tailCtx.Err() != nil {
			return
		}
		var ev schema.EditorEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Kind == "" {
			logger.Debug("skipping non-event frame", slog.String("event", string(msg.Event)))
			return
		}
		if err := fn(ev); err != nil {
			mu.Lock()
			if fnErr == nil {
				fnErr = err
			}
			mu.Unlock()
			cancel()
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if fnErr != nil {
		return fnErr
	}
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "tail %s", url).WithCause(err)
	}
	return ctx.Err()
}
