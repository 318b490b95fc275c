package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/apperr"
	"github.com/rustyclaw/core/internal/common/config"
	"github.com/rustyclaw/core/internal/common/logger"
)

// Dispatcher owns the tool registry and runs the safety pre/post hooks
// around every invocation.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]Tool

	defaultAction Action
	urlValidator  *URLValidator
	injection     *InjectionScanner
	leak          *LeakDetector

	logger *logger.Logger
}

// New constructs a Dispatcher from cfg, wiring the default conservative
// hook implementations.
func New(cfg config.DispatchConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	action := Action(cfg.DefaultAction)
	if action == "" {
		action = ActionWarn
	}
	return &Dispatcher{
		tools:         make(map[string]Tool),
		defaultAction: action,
		urlValidator:  NewURLValidator(),
		injection:     NewInjectionScanner(),
		leak:          NewLeakDetector(),
		logger:        log.WithFields(zap.String("component", "dispatch")),
	}
}

// Register adds a tool to the registry, keyed by name.
func (d *Dispatcher) Register(t Tool) error {
	if t.Name == "" {
		return apperr.New(apperr.KindInvalidInput, "dispatch", "tool name must not be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.Name]; exists {
		return apperr.New(apperr.KindConflict, "dispatch", "tool already registered: "+t.Name)
	}
	d.tools[t.Name] = t
	return nil
}

// Lookup returns the registered tool by name.
func (d *Dispatcher) Lookup(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Invoke validates args against the tool's declared schema, runs the
// URL-validator and injection-scanner pre-hooks over the relevant
// arguments, calls the handler, then runs the leak-detector post-hook
// over a successful result. It forwards the handler's result verbatim
// once post-hooks have run.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any, workspaceDir string) (string, error) {
	t, ok := d.Lookup(name)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, "dispatch", "unknown tool: "+name)
	}

	if t.Schema != nil {
		if err := validateArgs(t.Schema, args); err != nil {
			return "", apperr.Wrap(apperr.KindInvalidInput, "dispatch", "argument validation failed for "+name, err)
		}
	}

	for _, field := range t.URLArgFields {
		raw, ok := args[field].(string)
		if !ok || raw == "" {
			continue
		}
		if blocked, result := d.runURLHook(raw); blocked {
			return result, nil
		}
	}

	for _, field := range t.TextArgFields {
		raw, ok := args[field].(string)
		if !ok || raw == "" {
			continue
		}
		blocked, result, sanitized := d.runInjectionHook(raw)
		if blocked {
			return result, nil
		}
		if sanitized != "" {
			args[field] = sanitized
		}
	}

	out, err := t.Handler(ctx, args, workspaceDir)
	if err != nil {
		return "", err
	}

	return d.runLeakHook(out), nil
}

func (d *Dispatcher) runURLHook(raw string) (shortCircuit bool, result string) {
	ok, reason := d.urlValidator.Check(raw)
	if ok {
		return false, ""
	}
	switch d.defaultAction {
	case ActionBlock:
		return true, fmt.Sprintf("blocked: %s", reason)
	case ActionWarn:
		d.logger.Warn("url validator flagged argument", zap.String("reason", reason))
	case ActionSanitize, ActionIgnore:
	}
	return false, ""
}

func (d *Dispatcher) runInjectionHook(raw string) (shortCircuit bool, result, sanitized string) {
	flagged, clean := d.injection.Scan(raw)
	if !flagged {
		return false, "", ""
	}
	switch d.defaultAction {
	case ActionBlock:
		return true, "blocked: prompt-injection marker detected", ""
	case ActionWarn:
		d.logger.Warn("prompt-injection scanner flagged argument")
		return false, "", ""
	case ActionSanitize:
		return false, "", clean
	case ActionIgnore:
	}
	return false, "", ""
}

// runLeakHook returns the value Invoke should hand back as the tool
// result: the original output unless policy calls for blocking or
// sanitizing it.
func (d *Dispatcher) runLeakHook(output string) string {
	flagged, clean := d.leak.Scan(output)
	if !flagged {
		return output
	}
	switch d.defaultAction {
	case ActionBlock:
		return "blocked: leak detector flagged tool output"
	case ActionWarn:
		d.logger.Warn("leak detector flagged tool output")
	case ActionSanitize:
		return clean
	case ActionIgnore:
	}
	return output
}
