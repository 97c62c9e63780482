package action

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"usbtrigger/internal/classifier"
	"usbtrigger/internal/hotkey"
	"usbtrigger/internal/logging"
)

// Outcome reports what a dispatch attempt did.
type Outcome string

const (
	OutcomeExecuted        Outcome = "executed"
	OutcomeNoBinding       Outcome = "no-binding"
	OutcomeDisabled        Outcome = "disabled"
	OutcomeTriggerMismatch Outcome = "trigger-mismatch"
	OutcomeFailed          Outcome = "failed"
)

// BindingStore looks up the binding for a device.
type BindingStore interface {
	GetBinding(deviceID string) (Binding, bool)
}

// LogSink receives user-visible activity entries.
type LogSink interface {
	Emit(level logging.Level, message, source string)
}

// Dispatcher resolves classified presses against the binding store and
// runs the matched action.
type Dispatcher struct {
	store BindingStore
	sink  LogSink
}

// NewDispatcher creates a dispatcher over the given store and log sink.
func NewDispatcher(store BindingStore, sink LogSink) *Dispatcher {
	return &Dispatcher{store: store, sink: sink}
}

// Dispatch handles one classified press. Every press is surfaced in the
// activity log whether or not a binding fires.
func (d *Dispatcher) Dispatch(ev classifier.TriggeredEvent) Outcome {
	id := ev.Identity.String()

	d.sink.Emit(logging.LevelInfo, fmt.Sprintf("%s on device %s", ev.Trigger, id), id)

	binding, ok := d.store.GetBinding(id)
	if !ok {
		d.sink.Emit(logging.LevelWarn, fmt.Sprintf("No binding configured for device %s", id), id)
		return OutcomeNoBinding
	}
	if !binding.Enabled {
		d.sink.Emit(logging.LevelWarn, fmt.Sprintf("Binding disabled for device %s", id), id)
		return OutcomeDisabled
	}

	// Long press bindings never fire; the sources report instantaneous
	// presses only.
	if binding.TriggerType == classifier.LongPress || binding.TriggerType != ev.Trigger {
		logging.Log.Debug("Trigger type mismatch",
			zap.String("device", id),
			zap.String("expected", string(binding.TriggerType)),
			zap.String("detected", string(ev.Trigger)),
		)
		return OutcomeTriggerMismatch
	}

	cfg := binding.Action
	d.sink.Emit(logging.LevelInfo,
		fmt.Sprintf("Executing (%s): %s: %s", ev.Trigger, label(cfg.Type), cfg.ExecutablePath), id)

	if err := d.execute(cfg); err != nil {
		if cfg.Type == TypeHotkey {
			d.sink.Emit(logging.LevelError, fmt.Sprintf("Hotkey failed: %v", err), id)
		} else {
			d.sink.Emit(logging.LevelError, fmt.Sprintf("Action failed: %v", err), id)
		}
		return OutcomeFailed
	}

	if cfg.Type == TypeHotkey {
		d.sink.Emit(logging.LevelSuccess, fmt.Sprintf("Hotkey executed: %s", cfg.ExecutablePath), id)
	} else {
		d.sink.Emit(logging.LevelSuccess, fmt.Sprintf("Action executed: %s", cfg.ExecutablePath), id)
	}
	return OutcomeExecuted
}

// Run executes an action config immediately, outside any binding. Used
// by the test-action API.
func (d *Dispatcher) Run(cfg Config) error {
	return d.execute(cfg)
}

func (d *Dispatcher) execute(cfg Config) error {
	logging.Log.Info("Executing action",
		zap.String("type", string(cfg.Type)),
		zap.String("path", cfg.ExecutablePath),
		zap.String("args", cfg.Arguments),
	)

	switch cfg.Type {
	case TypeLaunchApp:
		return launchApp(cfg)
	case TypeRunScript:
		// Scripts go through the shell so file associations (.bat, .ps1
		// wrappers) resolve; the path is quoted to survive spaces.
		parts := append([]string{fmt.Sprintf("\"%s\"", cfg.ExecutablePath)}, SplitArgs(cfg.Arguments)...)
		return spawn(shellCommand(parts))
	case TypeSystemCommand:
		parts := append([]string{cfg.ExecutablePath}, SplitArgs(cfg.Arguments)...)
		return spawn(shellCommand(parts))
	case TypeHotkey:
		keys, err := hotkey.Parse(cfg.ExecutablePath)
		if err != nil {
			return err
		}
		return hotkey.Send(keys)
	}
	return fmt.Errorf("unknown action type %q", cfg.Type)
}

func launchApp(cfg Config) error {
	if cfg.RunAsAdmin {
		return launchElevated(cfg.ExecutablePath, cfg.Arguments, cfg.WorkingDirectory)
	}
	cmd := exec.Command(cfg.ExecutablePath, SplitArgs(cfg.Arguments)...)
	cmd.Dir = cfg.WorkingDirectory
	return spawn(cmd)
}

// spawn starts the process without waiting. The child is released so it
// outlives the daemon if it wants to.
func spawn(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
