// Package handler provides reflection-based handler execution for the
// job queue.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Handler holds metadata about a registered job handler.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type
	HasContext bool
}

// NewHandler creates a Handler from a function.
// The function must have signature: func(ctx context.Context, payload T) error
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)

	// Check for typed nil (e.g., var fn func() = nil)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}

	h := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return nil, fmt.Errorf("handler must have 1-2 arguments")
	}

	argIdx := 0
	if fnType.In(0).Implements(reflect.TypeOf((*context.Context)(nil)).Elem()) {
		h.HasContext = true
		argIdx = 1
	}

	if argIdx < numIn {
		h.ArgsType = fnType.In(argIdx)
	}

	if fnType.NumOut() != 1 || !fnType.Out(0).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		return nil, fmt.Errorf("handler must return error")
	}

	return h, nil
}

// Execute runs the handler with the given context and JSON payload.
// Success or failure is the handler's return value alone; there is no
// implicit success path.
func (h *Handler) Execute(ctx context.Context, payloadJSON []byte) error {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return fmt.Errorf("handler function is nil or invalid")
	}

	var args []reflect.Value

	if h.HasContext {
		args = append(args, reflect.ValueOf(ctx))
	}

	if h.ArgsType != nil {
		argVal := reflect.New(h.ArgsType)
		if err := json.Unmarshal(payloadJSON, argVal.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		args = append(args, argVal.Elem())
	}

	results := h.Fn.Call(args)

	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}
