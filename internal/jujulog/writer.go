// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package jujulog routes loggo records to the juju-log hook tool, so
// charm log output lands in the model log alongside the unit agent's.
package jujulog

import (
	"io"

	"github.com/juju/loggo/v2"
)

// ToolLogger writes one message to the Juju model log at the given
// level. *hooktool.Runner implements it.
type ToolLogger interface {
	JujuLog(level string, message string) error
}

// Writer is a loggo.Writer backed by the juju-log hook tool. Records are
// written to the fallback writer instead when the tool is unavailable,
// for example when the binary runs outside a hook for debugging.
type Writer struct {
	tool     ToolLogger
	fallback loggo.Writer
}

// NewWriter returns a Writer forwarding to tool, falling back to a simple
// writer on fallbackOut (typically stderr).
func NewWriter(tool ToolLogger, fallbackOut io.Writer) *Writer {
	return &Writer{
		tool:     tool,
		fallback: loggo.NewSimpleWriter(fallbackOut, loggo.DefaultFormatter),
	}
}

// Write implements loggo.Writer.
func (w *Writer) Write(entry loggo.Entry) {
	message := entry.Message
	if entry.Module != "" {
		message = entry.Module + ": " + message
	}
	if err := w.tool.JujuLog(jujuLevel(entry.Level), message); err != nil {
		w.fallback.Write(entry)
	}
}

// jujuLevel maps loggo levels onto the levels juju-log accepts.
func jujuLevel(level loggo.Level) string {
	switch level {
	case loggo.TRACE:
		return loggo.DEBUG.String()
	case loggo.CRITICAL:
		return loggo.ERROR.String()
	default:
		return level.String()
	}
}
