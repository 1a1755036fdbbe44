// Package sandbox instantiates verified module source in an isolated
// script runtime.
//
// The runtime exposes no host capability beyond the crypto module: no
// network objects, no storage, no loader. Instantiation only ever runs on
// source the gate has already verified, so the sandbox is the second fence,
// not the first.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/xordi/modguard/internal/analyzer"
)

// Config controls runtime limits for instantiated modules.
type Config struct {
	// CallTimeout bounds each exported-function call.
	CallTimeout time.Duration
	// MaxCallStackSize guards against runaway recursion.
	MaxCallStackSize int
}

// DefaultConfig returns the default runtime limits.
func DefaultConfig() Config {
	return Config{
		CallTimeout:      5 * time.Second,
		MaxCallStackSize: 1024,
	}
}

// LogEntry is one captured console line from the instantiated module.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// Instance is one instantiated module. The underlying VM is single
// threaded; Call serializes access.
type Instance struct {
	vm      *goja.Runtime
	exports *goja.Object
	config  Config
	mu      sync.Mutex

	console   []LogEntry
	consoleMu sync.Mutex
}

// Instantiate evaluates module source and captures its export surface.
// ES module declarations are resolved statically before evaluation; the
// only import either module style can satisfy is the built-in crypto
// module.
func Instantiate(source []byte, config Config) (*Instance, error) {
	syntax, err := analyzer.ScanModuleSyntax(source)
	if err != nil {
		return nil, fmt.Errorf("module syntax: %w", err)
	}

	vm := goja.New()
	if config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	inst := &Instance{
		vm:     vm,
		config: config,
	}
	inst.setupGlobals()

	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	moduleObj.Set("exports", exportsObj)
	vm.Set("module", moduleObj)
	vm.Set("exports", exportsObj)

	if syntax.IsModule {
		if err := inst.bindImports(syntax.Imports); err != nil {
			return nil, err
		}
		vm.Set(analyzer.DefaultSlot, goja.Undefined())
	}

	if _, err := vm.RunScript("module.js", string(syntax.Source)); err != nil {
		return nil, fmt.Errorf("module evaluation: %w", err)
	}

	exports, err := inst.collectExports(syntax, moduleObj)
	if err != nil {
		return nil, err
	}
	inst.exports = exports
	return inst, nil
}

// setupGlobals installs the minimal host surface: captured console, inert
// timers, and a require that resolves the crypto module and nothing else.
func (i *Instance) setupGlobals() {
	console := i.vm.NewObject()
	console.Set("log", i.makeConsoleFunc("log"))
	console.Set("warn", i.makeConsoleFunc("warn"))
	console.Set("error", i.makeConsoleFunc("error"))
	console.Set("info", i.makeConsoleFunc("info"))
	i.vm.Set("console", console)

	i.vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	i.vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})

	i.vm.Set("require", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		mod, err := i.resolveModule(specifier)
		if err != nil {
			panic(i.vm.NewTypeError(err.Error()))
		}
		return mod
	})
}

func (i *Instance) resolveModule(specifier string) (*goja.Object, error) {
	if strings.TrimPrefix(specifier, "node:") == "crypto" {
		return newCryptoModule(i.vm), nil
	}
	return nil, fmt.Errorf("module not available: %s", specifier)
}

// bindImports injects the local bindings declared by static imports.
func (i *Instance) bindImports(imports []analyzer.ImportDecl) error {
	for _, imp := range imports {
		mod, err := i.resolveModule(imp.Specifier)
		if err != nil {
			return err
		}
		for _, b := range imp.Bindings {
			switch b.Imported {
			case "default", "*":
				i.vm.Set(b.Local, mod)
			default:
				v := mod.Get(b.Imported)
				if v == nil {
					v = goja.Undefined()
				}
				i.vm.Set(b.Local, v)
			}
		}
	}
	return nil
}

// collectExports reads the module's export surface after evaluation. For
// plain scripts that is module.exports; for ES modules the recorded export
// bindings are read back out of the global lexical environment.
func (i *Instance) collectExports(syntax *analyzer.ModuleSyntax, moduleObj *goja.Object) (*goja.Object, error) {
	if !syntax.IsModule {
		v := moduleObj.Get("exports")
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return i.vm.NewObject(), nil
		}
		return v.ToObject(i.vm), nil
	}

	var b strings.Builder
	b.WriteString("({")
	for idx, e := range syntax.Exports {
		if idx > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %s", e.Exported, e.Local)
	}
	b.WriteString("})")

	v, err := i.vm.RunString(b.String())
	if err != nil {
		return nil, fmt.Errorf("collect exports: %w", err)
	}
	return v.ToObject(i.vm), nil
}

func (i *Instance) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg strings.Builder
		for idx, arg := range call.Arguments {
			if idx > 0 {
				msg.WriteByte(' ')
			}
			msg.WriteString(arg.String())
		}
		i.consoleMu.Lock()
		i.console = append(i.console, LogEntry{
			Level:   level,
			Message: msg.String(),
			Time:    time.Now(),
		})
		i.consoleMu.Unlock()
		return goja.Undefined()
	}
}

// Exports returns the names of the module's exported members.
func (i *Instance) Exports() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exports.Keys()
}

// Has reports whether the module exports the named member.
func (i *Instance) Has(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	v := i.exports.Get(name)
	return v != nil && !goja.IsUndefined(v)
}

// Call invokes an exported function with the call timeout and context both
// able to interrupt execution.
func (i *Instance) Call(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fnVal := i.exports.Get(name)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("module does not export function %q", name)
	}

	timer := time.NewTimer(i.config.CallTimeout)
	defer timer.Stop()
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			i.vm.Interrupt("call timeout exceeded")
		case <-ctx.Done():
			i.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	gargs := make([]goja.Value, len(args))
	for idx, a := range args {
		gargs[idx] = i.vm.ToValue(a)
	}

	val, err := fn(goja.Undefined(), gargs...)
	close(done)
	// The watchdog must be fully exited before the interrupt is cleared;
	// an Interrupt landing after ClearInterrupt would poison the next call.
	<-exited
	i.vm.ClearInterrupt()

	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// Console returns the console output captured so far.
func (i *Instance) Console() []LogEntry {
	i.consoleMu.Lock()
	defer i.consoleMu.Unlock()
	return append([]LogEntry(nil), i.console...)
}
