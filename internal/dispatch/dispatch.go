// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package dispatch provides the hook dispatch command run by the charm's
// dispatch script.
package dispatch

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/cmd/v4"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/canonical/content-cache-backends-config-operator/internal/charm"
	"github.com/canonical/content-cache-backends-config-operator/internal/charmmeta"
	"github.com/canonical/content-cache-backends-config-operator/internal/hookenv"
	"github.com/canonical/content-cache-backends-config-operator/internal/hooktool"
	"github.com/canonical/content-cache-backends-config-operator/internal/jujulog"
)

var logger = loggo.GetLogger("charm.dispatch")

// configInterface is the interface name of the endpoint the configuration
// is published on, as declared in metadata.yaml.
const configInterface = "content-cache-config"

// dispatchCommand runs a single charm hook.
type dispatchCommand struct {
	cmd.CommandBase

	hookName string
	charmDir string
	debug    bool
}

// NewDispatchCommand returns the command executed by the dispatch script.
func NewDispatchCommand() cmd.Command {
	return &dispatchCommand{}
}

// Info implements cmd.Command.
func (c *dispatchCommand) Info() *cmd.Info {
	doc := `
Runs one hook of the content-cache-backends-config charm. The hook name
and the rest of the execution context are taken from the JUJU_* hook
environment; both can be overridden for manual runs.
`
	return &cmd.Info{
		Name:    "content-cache-backends-config",
		Args:    "[<hook>]",
		Purpose: "dispatch a charm hook",
		Doc:     doc,
	}
}

// SetFlags implements cmd.Command.
func (c *dispatchCommand) SetFlags(f *gnuflag.FlagSet) {
	f.BoolVar(&c.debug, "debug", false, "log at debug level")
	f.StringVar(&c.charmDir, "charm-dir", "", "charm directory (defaults to JUJU_CHARM_DIR)")
}

// Init implements cmd.Command.
func (c *dispatchCommand) Init(args []string) error {
	if len(args) > 0 {
		c.hookName = args[0]
		args = args[1:]
	}
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *dispatchCommand) Run(cmdCtx *cmd.Context) error {
	env, err := hookenv.Current()
	if err != nil {
		return errors.Trace(err)
	}
	if c.hookName != "" {
		env.HookName = c.hookName
	}
	if c.charmDir != "" {
		env.CharmDir = c.charmDir
	}

	runner := hooktool.NewRunner(hooktool.RunnerParams{})
	if err := setUpLogging(runner, cmdCtx.Stderr, c.debug); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("dispatching hook %q for unit %q", env.HookName, env.UnitName)

	meta, err := charmmeta.ReadMetaFile(filepath.Join(env.CharmDir, "metadata.yaml"))
	if err != nil {
		return errors.Trace(err)
	}
	endpoint, err := meta.ProviderByInterface(configInterface)
	if err != nil {
		return errors.Trace(err)
	}

	ch, err := charm.New(charm.Params{
		Tools:    runner,
		Endpoint: endpoint.Name,
		CharmDir: env.CharmDir,
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(ch.RunHook(context.Background(), env.HookName))
}

// setUpLogging routes all loggo output through juju-log, falling back to
// the command's stderr outside a hook environment.
func setUpLogging(runner *hooktool.Runner, stderr io.Writer, debug bool) error {
	if _, err := loggo.ReplaceDefaultWriter(jujulog.NewWriter(runner, stderr)); err != nil {
		return errors.Trace(err)
	}
	spec := "<root>=INFO"
	if debug || os.Getenv("JUJU_DEBUG") != "" {
		spec = "<root>=DEBUG"
	}
	return errors.Trace(loggo.ConfigureLoggers(spec))
}
