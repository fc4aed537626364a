package script

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"

	"costa/internal/costa"

	"github.com/dop251/goja"
)

var promiseType = reflect.TypeOf((*goja.Promise)(nil))

// ErrUnsettledPromise is returned when a stage entry returns a promise that
// can no longer settle once the job queue is drained.
var ErrUnsettledPromise = errors.New("script: stage returned a promise that never settled")

// RejectionError carries the reason of a rejected stage promise when the
// reason did not originate in Go.
type RejectionError struct {
	Reason  any
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("script: promise rejected: %s", e.Message)
}

// Load implements costa.ScriptLoader. The entry is chosen in order from: the
// module's exports when callable, the member named after the stage, and the
// "default" member.
func (h *Host) Load(ctx context.Context, s costa.Script, stage costa.StageType) (costa.EntryFunc, error) {
	path, ok := resolvePath(filepath.Clean(s.Path))
	if s.Path == "" || !ok {
		return nil, &costa.ModuleNotFoundError{
			Ecosystem:   costa.Managed,
			ID:          s.Name,
			SearchPaths: []string{s.Path},
			Err:         errNotFound,
		}
	}

	_, leave := h.enter(ctx)
	exports, err := h.require(path)
	var entry goja.Callable
	if err == nil {
		entry = pickEntry(exports, stage)
	}
	leave()

	if err != nil {
		return nil, unwrapError(err)
	}
	if entry == nil {
		return nil, &costa.EntryPointNotFoundError{Script: s.Name, Path: path, Stage: stage}
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return h.invoke(ctx, entry, args)
	}, nil
}

func pickEntry(exports goja.Value, stage costa.StageType) goja.Callable {
	if fn, ok := goja.AssertFunction(exports); ok {
		return fn
	}
	if exports == nil || goja.IsUndefined(exports) || goja.IsNull(exports) {
		return nil
	}
	obj, ok := exports.(*goja.Object)
	if !ok {
		return nil
	}
	for _, name := range []string{stage.ExportName(), "default"} {
		if fn, ok := goja.AssertFunction(obj.Get(name)); ok {
			return fn
		}
	}
	return nil
}

func (h *Host) invoke(ctx context.Context, fn goja.Callable, args []any) (any, error) {
	_, leave := h.enter(ctx)
	defer leave()

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = h.toValue(a)
	}

	res, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, unwrapError(err)
	}
	return h.settle(res)
}

func (h *Host) toValue(a any) goja.Value {
	switch v := a.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	case *costa.ExecutionContext:
		return h.contextObject(v)
	default:
		return h.vm.ToValue(v)
	}
}

// settle resolves a returned promise. The job queue has already run when the
// call returned, so a pending promise has nothing left that could settle it.
func (h *Host) settle(res goja.Value) (any, error) {
	if res == nil {
		return nil, nil
	}
	obj, ok := res.(*goja.Object)
	if !ok || obj.ExportType() != promiseType {
		return result(res), nil
	}
	p := obj.Export().(*goja.Promise)
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return result(p.Result()), nil
	case goja.PromiseStateRejected:
		return nil, rejection(p.Result())
	default:
		return nil, ErrUnsettledPromise
	}
}

// result keeps objects as runtime values so the next stage gets them back
// untouched; primitives are exported.
func result(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		return obj
	}
	return v.Export()
}

func rejection(reason goja.Value) error {
	if obj, ok := reason.(*goja.Object); ok {
		if inner := obj.Get("value"); inner != nil {
			if err, ok := inner.Export().(error); ok {
				return err
			}
		}
	}
	return &RejectionError{Reason: exportValue(reason), Message: reasonText(reason)}
}

func reasonText(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}

// unwrapError returns the Go error behind a script exception or interrupt
// when there is one, and err itself otherwise.
func unwrapError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if inner := exc.Unwrap(); inner != nil {
			return inner
		}
		return exc
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if inner := ie.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
