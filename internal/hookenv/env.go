// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package hookenv reads the environment the unit agent prepares for a
// hook execution.
package hookenv

import (
	"os"
	"path"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
)

// Context describes the hook invocation the charm is running under, as
// declared by the JUJU_* environment variables.
type Context struct {
	// HookName is the name of the hook being run, e.g. "config-changed".
	HookName string

	// UnitName is the local unit, e.g. "content-cache-backends-config/0".
	UnitName string

	// AppName is the application the local unit belongs to.
	AppName string

	// CharmDir is the root of the charm directory.
	CharmDir string

	// ModelName is the model the unit runs in. Informational only.
	ModelName string

	// RelationName and RelationID identify the relation a relation hook
	// runs for. Both are empty for non-relation hooks.
	RelationName string
	RelationID   string

	// RemoteApp is the application on the other side of the relation,
	// when running a relation hook.
	RemoteApp string
}

// Current builds a Context from the process environment. It fails when
// the hook name or the unit name is missing or malformed, since nothing
// sensible can be done without them.
func Current() (Context, error) {
	ctx := Context{
		HookName:     hookName(),
		UnitName:     os.Getenv("JUJU_UNIT_NAME"),
		CharmDir:     os.Getenv("JUJU_CHARM_DIR"),
		ModelName:    os.Getenv("JUJU_MODEL_NAME"),
		RelationName: os.Getenv("JUJU_RELATION"),
		RelationID:   os.Getenv("JUJU_RELATION_ID"),
		RemoteApp:    os.Getenv("JUJU_REMOTE_APP"),
	}
	if ctx.HookName == "" {
		return Context{}, errors.New("hook name not found in JUJU_DISPATCH_PATH or JUJU_HOOK_NAME")
	}
	if !names.IsValidUnit(ctx.UnitName) {
		return Context{}, errors.NotValidf("unit name %q", ctx.UnitName)
	}
	appName, err := names.UnitApplication(ctx.UnitName)
	if err != nil {
		return Context{}, errors.Trace(err)
	}
	ctx.AppName = appName
	if ctx.CharmDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return Context{}, errors.Trace(err)
		}
		ctx.CharmDir = dir
	}
	return ctx, nil
}

// hookName resolves the hook being dispatched. Modern agents set
// JUJU_DISPATCH_PATH to "hooks/<name>"; JUJU_HOOK_NAME is kept as a
// fallback for manual runs.
func hookName() string {
	if dispatchPath := os.Getenv("JUJU_DISPATCH_PATH"); dispatchPath != "" {
		if rest, ok := strings.CutPrefix(path.Clean(dispatchPath), "hooks/"); ok {
			return rest
		}
		return ""
	}
	return os.Getenv("JUJU_HOOK_NAME")
}
