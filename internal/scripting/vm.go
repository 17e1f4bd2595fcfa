package scripting

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/lotto-desk/internal/draw"
)

// LogEntry is one message a script wrote with log() or console.log().
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// logBuffer keeps the most recent script messages.
type logBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	max     int
}

func (b *logBuffer) add(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.max {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, LogEntry{Time: time.Now(), Message: msg})
}

func (b *logBuffer) snapshot() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// vm is a single-use sandboxed runtime.
type vm struct {
	runtime *goja.Runtime
	src     draw.Source
	logs    *logBuffer
}

func newVM(src draw.Source, logs *logBuffer) *vm {
	v := &vm{runtime: goja.New(), src: src, logs: logs}
	v.runtime.SetRandSource(func() float64 {
		return float64(src.IntN(1<<53)) / (1 << 53)
	})
	v.injectGlobals()
	return v
}

func (v *vm) injectGlobals() {
	v.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		v.logs.add(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := v.runtime.NewObject()
	console.Set("log", v.runtime.Get("log"))
	v.runtime.Set("console", console)

	// randint(lo, hi) is inclusive on both ends.
	v.runtime.Set("randint", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(v.runtime.NewTypeError("randint(lo, hi) needs two arguments"))
		}
		lo := call.Arguments[0].ToInteger()
		hi := call.Arguments[1].ToInteger()
		if hi < lo {
			panic(v.runtime.NewTypeError(fmt.Sprintf("randint: hi %d is below lo %d", hi, lo)))
		}
		// hi-lo wraps negative when the range overflows int64.
		span := hi - lo
		if span < 0 || span >= math.MaxInt {
			panic(v.runtime.NewTypeError("randint: range %d..%d is too wide", lo, hi))
		}
		return v.runtime.ToValue(lo + int64(v.src.IntN(int(span+1))))
	})

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		v.runtime.Set(name, goja.Undefined())
	}
}

func (v *vm) set(name string, value any) {
	v.runtime.Set(name, v.runtime.ToValue(value))
}

func (v *vm) execute(program *goja.Program) error {
	if _, err := v.runtime.RunProgram(program); err != nil {
		return fmt.Errorf("script execution error: %w", err)
	}
	return nil
}

func (v *vm) callPredict(input any) (goja.Value, error) {
	fn := v.runtime.Get("predict")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return nil, fmt.Errorf("predict() function is not defined")
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("predict is not a function")
	}
	out, err := callable(goja.Undefined(), v.runtime.ToValue(input))
	if err != nil {
		return nil, fmt.Errorf("predict() error: %w", err)
	}
	return out, nil
}

// runWithTimeout runs fn and interrupts the runtime if it outlives timeout
// or done is closed.
func (v *vm) runWithTimeout(done <-chan struct{}, timeout time.Duration, fn func() error) error {
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("script runtime panic: %v", r)
			}
		}()
		result <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
	case <-done:
	}

	v.runtime.Interrupt("script execution timeout")
	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return ErrTimeout
	case <-time.After(200 * time.Millisecond):
		return ErrTimeout
	}
}
