package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"costa/internal/costa"
	"costa/internal/logging"

	"github.com/dop251/goja"
)

const wrapperHead = "(function (exports, require, module, __filename, __dirname) {"
const wrapperTail = "\n})"

type Options struct {
	// GlobalFolders are tried after a script's own node_modules chain when
	// it requires a bare id.
	GlobalFolders []string
}

// Host owns one script runtime and the CommonJS module cache on top of it.
// The runtime is not safe for concurrent use; Host serializes every entry
// into it.
type Host struct {
	mu  sync.Mutex
	vm  *goja.Runtime
	opt Options

	modules map[string]*goja.Object

	// script view of the most recent execution context
	ctxKey *costa.ExecutionContext
	ctxObj *goja.Object

	jsonParse goja.Callable
	freeze    goja.Callable

	active context.Context
}

type hostKey struct{}

func NewHost(opt Options) *Host {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	h := &Host{
		vm:      vm,
		opt:     opt,
		modules: make(map[string]*goja.Object),
		active:  context.Background(),
	}
	h.jsonParse, _ = goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	h.freeze, _ = goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze"))

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(name, h.consoleFunc(name))
	}
	_ = vm.Set("console", console)
	return h
}

// enter locks the runtime unless ctx already belongs to a call running
// inside it, and returns the context callbacks should see.
func (h *Host) enter(ctx context.Context) (context.Context, func()) {
	if ctx.Value(hostKey{}) == h {
		return ctx, func() {}
	}
	h.mu.Lock()
	prev := h.active
	inner := context.WithValue(ctx, hostKey{}, h)
	h.active = inner

	done, stopped := make(chan struct{}), make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			defer close(stopped)
			select {
			case <-ctx.Done():
				h.vm.Interrupt(ctx.Err())
			case <-done:
			}
		}()
	} else {
		close(stopped)
	}
	return inner, func() {
		close(done)
		<-stopped
		h.vm.ClearInterrupt()
		h.active = prev
		h.mu.Unlock()
	}
}

// Import resolves id against searchPaths and loads it. The module's exports
// are returned as a runtime value.
func (h *Host) Import(ctx context.Context, id string, searchPaths []string) (*costa.Module, error) {
	path, err := Resolve(id, searchPaths)
	if err != nil {
		return nil, err
	}
	_, leave := h.enter(ctx)
	defer leave()

	exports, err := h.require(path)
	if err != nil {
		return nil, unwrapError(err)
	}
	return &costa.Module{Ecosystem: costa.Managed, ID: id, Path: path, Exports: exports}, nil
}

// require loads the module at the absolute path, reusing the cached module
// when it was loaded before. Caller holds the runtime.
func (h *Host) require(path string) (goja.Value, error) {
	if m, ok := h.modules[path]; ok {
		return m.Get("exports"), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &costa.ModuleNotFoundError{Ecosystem: costa.Managed, ID: path, Err: err}
	}

	module := h.vm.NewObject()
	exports := h.vm.NewObject()
	_ = module.Set("exports", exports)
	_ = module.Set("id", path)
	_ = module.Set("filename", path)

	if strings.EqualFold(filepath.Ext(path), ".json") {
		v, err := h.jsonParse(goja.Undefined(), h.vm.ToValue(string(src)))
		if err != nil {
			return nil, fmt.Errorf("script: parse %s: %w", path, err)
		}
		_ = module.Set("exports", v)
		h.modules[path] = module
		return v, nil
	}

	prog, err := goja.Compile(path, wrapperHead+stripShebang(string(src))+wrapperTail, false)
	if err != nil {
		return nil, err
	}
	wrapper, err := h.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("script: %s did not compile to a function", path)
	}

	h.modules[path] = module
	_, err = fn(exports, exports, h.requireFunc(path), module, h.vm.ToValue(path), h.vm.ToValue(filepath.Dir(path)))
	if err != nil {
		delete(h.modules, path)
		return nil, err
	}
	return module.Get("exports"), nil
}

func (h *Host) requireFunc(from string) goja.Value {
	return h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		path, err := resolveFrom(from, id, h.opt.GlobalFolders)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		v, err := h.require(path)
		if err != nil {
			h.throw(err)
		}
		return v
	})
}

// throw raises err inside the runtime, keeping script exceptions intact.
func (h *Host) throw(err error) {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		panic(exc)
	}
	panic(h.vm.NewGoError(err))
}

// contextObject returns the frozen script-facing view of ec. Only the view of
// the latest context is cached; a rebuilt context replaces it.
func (h *Host) contextObject(ec *costa.ExecutionContext) *goja.Object {
	if h.ctxKey == ec && h.ctxObj != nil {
		return h.ctxObj
	}
	vm := h.vm
	obj := vm.NewObject()

	_ = obj.Set("importManagedModule", func(call goja.FunctionCall) goja.Value {
		return h.promise(func() (goja.Value, error) {
			m, err := ec.ImportManagedModule(h.active, call.Argument(0).String())
			if err != nil {
				return nil, err
			}
			return h.moduleValue(m), nil
		})
	})
	_ = obj.Set("importNativeModule", func(call goja.FunctionCall) goja.Value {
		return h.promise(func() (goja.Value, error) {
			m, err := ec.ImportNativeModule(h.active, call.Argument(0).String())
			if err != nil {
				return nil, err
			}
			return h.moduleValue(m), nil
		})
	})

	ws := ec.Workspace()
	wsObj := vm.NewObject()
	_ = wsObj.Set("dataDir", ws.DataDir)
	_ = wsObj.Set("modelDir", ws.ModelDir)
	_ = wsObj.Set("cacheDir", ws.CacheDir)
	_ = wsObj.Set("frameworkDir", ws.FrameworkDir)
	_, _ = h.freeze(goja.Undefined(), wsObj)
	_ = obj.Set("workspace", wsObj)
	_, _ = h.freeze(goja.Undefined(), obj)

	h.ctxKey, h.ctxObj = ec, obj
	return obj
}

func (h *Host) promise(fn func() (goja.Value, error)) goja.Value {
	p, resolve, reject := h.vm.NewPromise()
	v, err := fn()
	if err != nil {
		_ = reject(h.errorValue(err))
	} else {
		_ = resolve(v)
	}
	return h.vm.ToValue(p)
}

func (h *Host) errorValue(err error) goja.Value {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.Value()
	}
	return h.vm.NewGoError(err)
}

func (h *Host) moduleValue(m *costa.Module) goja.Value {
	switch ex := m.Exports.(type) {
	case goja.Value:
		return ex
	case costa.FuncSet:
		return h.funcSetObject(ex)
	default:
		return h.vm.ToValue(ex)
	}
}

// funcSetObject exposes each function of fs as a script function taking and
// returning plain values.
func (h *Host) funcSetObject(fs costa.FuncSet) *goja.Object {
	obj := h.vm.NewObject()
	for _, name := range fs.Functions() {
		fn := name
		_ = obj.Set(fn, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = exportValue(a)
			}
			out, err := fs.Call(h.active, fn, args)
			if err != nil {
				panic(h.vm.NewGoError(err))
			}
			return h.vm.ToValue(out)
		})
	}
	return obj
}

func (h *Host) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		msg := strings.Join(parts, " ")
		l := logging.L().With("source", "script")
		switch level {
		case "error":
			l.Error(msg)
		case "warn":
			l.Warn(msg)
		case "debug":
			l.Debug(msg)
		default:
			l.Info(msg)
		}
		return goja.Undefined()
	}
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func stripShebang(src string) string {
	if strings.HasPrefix(src, "#!") {
		if i := strings.IndexByte(src, '\n'); i >= 0 {
			return "//" + src[2:i] + src[i:]
		}
		return ""
	}
	return src
}
