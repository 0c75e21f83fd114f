package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// toolRunner executes the tool calls of one remote message.
type toolRunner struct {
	tools    ToolDispatcher
	timeout  time.Duration
	logger   Logger
	recorder Recorder
	onResult func(call ToolCall, result ToolResult)
}

// runAll dispatches calls concurrently and returns their responses in call
// order. Every response carries {"result": <handler result>}.
func (r *toolRunner) runAll(ctx context.Context, calls []ToolCall) []ToolResponse {
	responses := make([]ToolResponse, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			result := r.run(gctx, call)
			responses[i] = ToolResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"result": map[string]any(result)},
			}
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

func (r *toolRunner) run(ctx context.Context, call ToolCall) ToolResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan ToolResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("tool handler panicked", "tool", call.Name, "panic", p)
				done <- ToolResult{"error": "Tool failed"}
			}
		}()
		done <- r.tools.Dispatch(ctx, call)
	}()

	var result ToolResult
	select {
	case result = <-done:
	case <-ctx.Done():
		r.logger.Warn("tool call timed out", "tool", call.Name, "id", call.ID)
		result = ToolResult{"error": "Tool timed out"}
	}

	_, failed := result["error"]
	r.logger.Info("tool call executed", "tool", call.Name, "id", call.ID, "ok", !failed)
	if r.recorder != nil {
		r.recorder.ToolInvoked(call.Name, !failed)
	}
	if r.onResult != nil {
		r.onResult(call, result)
	}
	return result
}
