package gatherers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

// ScriptType selects the script gatherer in route configuration.
const ScriptType = "script"

const (
	// ScriptEntryPoint is the function a script must define.
	ScriptEntryPoint = "transform"
	// DefaultScriptTimeout bounds one transform call.
	DefaultScriptTimeout = time.Second
	// MaxScriptSize bounds the script source.
	MaxScriptSize = 64 * 1024
)

// ScriptTransformer runs a JavaScript transform(body, response) function over
// downstream payloads. The script is compiled once; runtimes are pooled
// because a goja runtime must not be used by two goroutines at once.
type ScriptTransformer struct {
	program *goja.Program
	timeout time.Duration
	logger  *logging.Logger
	pool    sync.Pool
}

type scriptRuntime struct {
	vm    *goja.Runtime
	fn    goja.Callable
	parse goja.Callable
}

// NewScriptTransformer compiles source and checks that it defines transform.
func NewScriptTransformer(source string, timeout time.Duration, logger *logging.Logger) (*ScriptTransformer, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("script: %w", scattergather.ErrMissingField)
	}
	if len(source) > MaxScriptSize {
		return nil, fmt.Errorf("script exceeds maximum size of %d bytes", MaxScriptSize)
	}
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	if logger == nil {
		logger = logging.NewDefault("script")
	}

	program, err := goja.Compile("transform.js", source, true)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	t := &ScriptTransformer{program: program, timeout: timeout, logger: logger}
	rt, err := t.newRuntime()
	if err != nil {
		return nil, err
	}
	t.pool.Put(rt)
	return t, nil
}

func (t *ScriptTransformer) newRuntime() (*scriptRuntime, error) {
	vm := goja.New()

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		t.logger.WithField("source", "script").Debug(fmt.Sprint(args...))
		return goja.Undefined()
	})
	if err := vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("set console: %w", err)
	}

	if _, err := vm.RunProgram(t.program); err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get(ScriptEntryPoint))
	if !ok {
		return nil, fmt.Errorf("entry point '%s' is not a function", ScriptEntryPoint)
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse is not available")
	}
	return &scriptRuntime{vm: vm, fn: fn, parse: parse}, nil
}

func (t *ScriptTransformer) acquire() (*scriptRuntime, error) {
	if rt, ok := t.pool.Get().(*scriptRuntime); ok {
		return rt, nil
	}
	return t.newRuntime()
}

// Transform implements scattergather.ResponseTransformer. The body is parsed
// with JSON.parse inside the runtime; an empty body is passed as null.
// An array result yields its elements; null or undefined yields no items.
func (t *ScriptTransformer) Transform(resp *http.Response, body []byte) ([]interface{}, error) {
	rt, err := t.acquire()
	if err != nil {
		return nil, err
	}

	timer := time.AfterFunc(t.timeout, func() {
		rt.vm.Interrupt("execution timeout")
	})
	result, err := rt.call(body, resp)
	if !timer.Stop() {
		// interrupted runtimes are not reused
		return nil, fmt.Errorf("execution error: %w", interruptedError(err))
	}
	if err != nil {
		return nil, err
	}
	t.pool.Put(rt)

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return []interface{}{}, nil
	}
	switch v := result.Export().(type) {
	case []interface{}:
		return v, nil
	default:
		return []interface{}{v}, nil
	}
}

func (rt *scriptRuntime) call(body []byte, resp *http.Response) (goja.Value, error) {
	doc := goja.Null()
	if text := strings.TrimSpace(string(body)); text != "" {
		parsed, err := rt.parse(goja.Undefined(), rt.vm.ToValue(text))
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		doc = parsed
	}
	result, err := rt.fn(goja.Undefined(), doc, rt.vm.ToValue(responseInfo(resp)))
	if err != nil {
		return nil, fmt.Errorf("execution error: %w", err)
	}
	return result, nil
}

func interruptedError(err error) error {
	if err == nil {
		return errors.New("execution timeout")
	}
	return err
}

func responseInfo(resp *http.Response) map[string]interface{} {
	info := map[string]interface{}{"status": 0, "headers": map[string]interface{}{}}
	if resp == nil {
		return info
	}
	headers := make(map[string]interface{}, len(resp.Header))
	for name := range resp.Header {
		headers[strings.ToLower(name)] = resp.Header.Get(name)
	}
	info["status"] = resp.StatusCode
	info["headers"] = headers
	return info
}

// ScriptFactory builds an HTTP gatherer whose response runs through a script.
// The script comes from Script (inline) or ScriptFile; ScriptTimeout bounds each call.
func ScriptFactory(section config.Section, services *scattergather.Services) (scattergather.Gatherer, error) {
	source := section.Get("Script").Value()
	if file := section.String("ScriptFile"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, scattergather.NewConfigError(section.Path(), err, "read ScriptFile")
		}
		source = string(data)
	}
	if strings.TrimSpace(source) == "" {
		return nil, scattergather.NewConfigError(section.Path(), scattergather.ErrMissingField, "Script or ScriptFile is required")
	}

	timeout, err := section.Duration("ScriptTimeout", DefaultScriptTimeout)
	if err != nil {
		return nil, scattergather.NewConfigError(section.Path(), err, "invalid ScriptTimeout")
	}

	var logger *logging.Logger
	if services != nil && services.Logger != nil {
		logger = services.Logger.Named("script")
	}
	transformer, err := NewScriptTransformer(source, timeout, logger)
	if err != nil {
		return nil, scattergather.NewConfigError(section.Path(), err, "invalid script")
	}
	g, err := scattergather.NewHTTPGathererFromSection(section, services, scattergather.WithResponseTransformer(transformer.Transform))
	if err != nil {
		return nil, err
	}
	return g, nil
}
