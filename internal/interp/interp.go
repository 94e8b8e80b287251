// Package interp wraps a goja JavaScript runtime as a notebook evaluation
// namespace.
//
// One Interp lives for the lifetime of one execution session: every name
// bound by one cell remains visible to later cells because they all run
// against the same goja.Runtime. The runtime is NOT goroutine-safe — the
// owning session serializes all Eval calls on its worker goroutine, and
// the only cross-goroutine entry point is Interrupt, which goja documents
// as safe to call concurrently.
package interp

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	_ "github.com/dop251/goja_nodejs/util" // required by the console module

	"github.com/lunalab/luna-kernel/internal/viz"
)

// Interp is a persistent evaluation namespace.
type Interp struct {
	vm     *goja.Runtime
	stdout *redirect
	stderr *redirect
}

// New creates an empty namespace with the notebook builtins installed:
// console (via goja_nodejs, routed to the capture channel), print, and
// the plot API.
func New() (*Interp, error) {
	vm := goja.New()
	it := &Interp{
		vm:     vm,
		stdout: &redirect{w: io.Discard},
		stderr: &redirect{w: io.Discard},
	}

	registry := new(require.Registry)
	registry.Enable(vm)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{it}))
	console.Enable(vm)

	if err := vm.Set("print", it.jsPrint); err != nil {
		return nil, fmt.Errorf("interp: installing print: %w", err)
	}
	if err := viz.Enable(vm); err != nil {
		return nil, fmt.Errorf("interp: installing plot: %w", err)
	}

	return it, nil
}

// Redirect points the namespace's console streams at the given writers
// for the duration of one execution. Pass nil writers to detach again;
// detached streams discard output.
func (it *Interp) Redirect(stdout, stderr io.Writer) {
	it.stdout.set(stdout)
	it.stderr.set(stderr)
}

// Eval runs one code unit against the persistent namespace and returns
// its completion value. Failures in user code come back as errors, never
// as panics — the recover mirrors the guard every embedder needs so a
// hostile cell cannot crash the session.
func (it *Interp) Eval(src string) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interp: runtime panic: %v", r)
		}
	}()
	return it.vm.RunString(src)
}

// Interrupt aborts the in-flight Eval at the next interpreter checkpoint.
// Safe to call from any goroutine; no-op if nothing is running. The cause
// is carried inside the resulting *goja.InterruptedError.
func (it *Interp) Interrupt(cause error) {
	it.vm.Interrupt(cause)
}

// ClearInterrupt must be called after an interrupted Eval returns, before
// the namespace is used again.
func (it *Interp) ClearInterrupt() {
	it.vm.ClearInterrupt()
}

// jsPrint is the print(...) builtin: arguments joined by spaces, newline
// terminated, written to captured stdout.
func (it *Interp) jsPrint(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	fmt.Fprintln(it.stdout, strings.Join(parts, " "))
	return goja.Undefined()
}

// printer adapts the namespace's console streams to the goja_nodejs
// console module. console.log goes to stdout; warn and error to stderr.
type printer struct {
	it *Interp
}

func (p printer) Log(s string)   { fmt.Fprintln(p.it.stdout, s) }
func (p printer) Warn(s string)  { fmt.Fprintln(p.it.stderr, s) }
func (p printer) Error(s string) { fmt.Fprintln(p.it.stderr, s) }

// redirect is a swappable io.Writer. The session swaps the destination
// around each execution; the zero destination discards.
type redirect struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *redirect) set(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}

func (r *redirect) Write(p []byte) (int, error) {
	r.mu.Lock()
	w := r.w
	r.mu.Unlock()
	return w.Write(p)
}
