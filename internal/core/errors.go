package core

import (
	"strings"
)

// ScriptError is an exception raised inside the engine, split into the
// message line and the remaining stack text.
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Stack == "" {
		return e.Message
	}
	return e.Message + "\n" + e.Stack
}

// NewScriptError builds a ScriptError from engine error text of the form
// "Name: message\n    at ...". Empty text yields a generic message.
func NewScriptError(text string) *ScriptError {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return &ScriptError{Message: "unknown script error"}
	}
	msg, stack, _ := strings.Cut(text, "\n")
	return &ScriptError{Message: msg, Stack: stack}
}
