package executor

import (
	"context"

	"github.com/nlstep/nlstep/pkg/schema"
)

// BackendResult is what a browser backend reports for one instruction.
type BackendResult struct {
	Success bool
	Message string
	// Data carries values the backend extracted from the page, keyed by
	// field name. The dispatcher merges it into the session's UI bag.
	Data map[string]string
}

// Backend drives a real browser. Implementations are opaque to the rest of
// the engine: an instruction goes in, a result comes out.
type Backend interface {
	Run(ctx context.Context, instruction string) (*BackendResult, error)
	Close() error
}

// BrowserExecutor forwards natural-language instructions to a Backend and
// reports each one as an ExecutionRecord. A backend that cannot be reached
// is a BACKEND_UNAVAILABLE error; an instruction the backend rejects is
// recorded failure data, not an error return.
type BrowserExecutor struct {
	backend Backend
}

// NewBrowserExecutor creates a browser executor over the given backend.
func NewBrowserExecutor(backend Backend) *BrowserExecutor {
	return &BrowserExecutor{backend: backend}
}

// Execute runs one instruction through the backend.
func (e *BrowserExecutor) Execute(ctx context.Context, instruction string) (*schema.ExecutionRecord, error) {
	if e.backend == nil {
		return nil, schema.NewError(schema.ErrCodeBackendUnavailable,
			"no browser backend configured")
	}

	rec := &schema.ExecutionRecord{
		Tool:        "browser",
		Instruction: instruction,
	}

	res, err := e.backend.Run(ctx, instruction)
	if err != nil {
		if engErr, ok := err.(*schema.EngineError); ok && engErr.Code == schema.ErrCodeBackendUnavailable {
			return nil, engErr
		}
		rec.Error = err.Error()
		return rec, nil
	}

	rec.ResponseBody = res.Message
	if !res.Success {
		rec.Error = res.Message
	}
	if len(res.Data) > 0 {
		obj := make(map[string]any, len(res.Data))
		for k, v := range res.Data {
			obj[k] = v
		}
		rec.ResponseJSON = obj
	}
	return rec, nil
}

// Close releases the backend.
func (e *BrowserExecutor) Close() error {
	if e.backend == nil {
		return nil
	}
	return e.backend.Close()
}
