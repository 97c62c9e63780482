// Package action defines device bindings and executes their configured
// actions when a classified press matches.
package action

import (
	"strings"

	"usbtrigger/internal/classifier"
)

// Type selects what a binding does when it fires.
type Type string

const (
	TypeLaunchApp     Type = "launch-app"
	TypeRunScript     Type = "run-script"
	TypeSystemCommand Type = "system-command"
	TypeHotkey        Type = "hotkey"
)

// Config describes the action side of a binding. For hotkey actions the
// executable path holds the chord string (for example "Ctrl+Shift+V").
type Config struct {
	Type             Type   `json:"type"`
	ExecutablePath   string `json:"executablePath"`
	Arguments        string `json:"arguments"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
	RunAsAdmin       bool   `json:"runAsAdmin,omitempty"`
}

// Binding ties a device to an action. DeviceID is the canonical
// "VVVV:PPPP" form and is unique across bindings.
type Binding struct {
	ID          string                 `json:"id"`
	DeviceID    string                 `json:"deviceId"`
	VendorID    uint16                 `json:"vendorId"`
	ProductID   uint16                 `json:"productId"`
	TriggerType classifier.TriggerKind `json:"triggerType"`
	Action      Config                 `json:"action"`
	Enabled     bool                   `json:"enabled"`
	CreatedAt   string                 `json:"createdAt"`
	UpdatedAt   string                 `json:"updatedAt"`
}

// SplitArgs splits an argument string on spaces and tabs while keeping
// double-quoted segments intact. Quotes are stripped from the result.
func SplitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuotes := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case (r == ' ' || r == '\t') && !inQuotes:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

func label(t Type) string {
	switch t {
	case TypeLaunchApp:
		return "Launch App"
	case TypeRunScript:
		return "Run Script"
	case TypeSystemCommand:
		return "System Command"
	case TypeHotkey:
		return "Hotkey"
	}
	return string(t)
}
