// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package charm implements the content-cache-backends-config charm: it
// validates the charm configuration and, on the leader unit, publishes it
// as application data on the cache-config integration for the principal
// content-cache charm to consume.
package charm

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/content-cache-backends-config-operator/internal/config"
	"github.com/canonical/content-cache-backends-config-operator/internal/status"
)

var logger = loggo.GetLogger("charm")

// statusWaitingForIntegration is reported until the charm is related to a
// content cache.
const statusWaitingForIntegration = "Waiting for integration"

// Tools is the subset of hook tools the charm needs.
// *hooktool.Runner implements it.
type Tools interface {
	// ConfigGet returns the raw charm configuration.
	ConfigGet(ctx context.Context) (map[string]interface{}, error)

	// RelationIDs returns the current relation ids on an endpoint, in
	// natural order.
	RelationIDs(ctx context.Context, endpoint string) ([]string, error)

	// RelationSetApp writes settings to a relation's application data bag.
	RelationSetApp(ctx context.Context, relationID string, settings map[string]string) error

	// StatusSet sets the unit workload status.
	StatusSet(ctx context.Context, st status.Status, message string) error

	// IsLeader reports whether the local unit holds application leadership.
	IsLeader(ctx context.Context) (bool, error)

	// ApplicationVersionSet sets the workload version shown in juju status.
	ApplicationVersionSet(ctx context.Context, version string) error
}

// Params holds the dependencies of a Charm.
type Params struct {
	// Tools provides access to the hook tools.
	Tools Tools

	// Endpoint is the name of the integration endpoint the configuration
	// is published on, e.g. "cache-config".
	Endpoint string

	// CharmDir is the root of the charm directory.
	CharmDir string
}

// Charm handles hook events for the content-cache-backends-config charm.
type Charm struct {
	tools    Tools
	endpoint string
	charmDir string
}

// New returns a Charm using the given dependencies.
func New(p Params) (*Charm, error) {
	if p.Tools == nil {
		return nil, errors.NotValidf("nil Tools")
	}
	if p.Endpoint == "" {
		return nil, errors.NotValidf("empty Endpoint")
	}
	return &Charm{tools: p.Tools, endpoint: p.Endpoint, charmDir: p.CharmDir}, nil
}

// RunHook dispatches a single hook execution. Hooks the charm has no
// behaviour for succeed without doing anything, as Juju runs a number of
// lifecycle hooks every charm receives.
func (c *Charm) RunHook(ctx context.Context, hookName string) error {
	logger.Debugf("running hook %q", hookName)
	switch hookName {
	case "config-changed", "leader-elected", c.relationHook("changed"):
		return errors.Trace(c.reconcile(ctx))
	case "install":
		c.setWorkloadVersion(ctx)
		return errors.Trace(c.updateStatus(ctx))
	case "upgrade-charm":
		c.setWorkloadVersion(ctx)
		return errors.Trace(c.reconcile(ctx))
	case "start", "update-status",
		c.relationHook("created"), c.relationHook("joined"),
		c.relationHook("departed"), c.relationHook("broken"):
		return errors.Trace(c.updateStatus(ctx))
	}
	logger.Debugf("no handler for hook %q", hookName)
	return nil
}

// reconcile validates the configuration and, on the leader, rewrites the
// full integration payload. Rewriting on every run keeps the operation
// idempotent: the relation data converges regardless of which hook fired.
func (c *Charm) reconcile(ctx context.Context) error {
	leader, err := c.tools.IsLeader(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		logger.Debugf("not leader: not setting the integration data")
		return errors.Trace(c.updateStatus(ctx))
	}

	logger.Infof("leader: loading configuration")
	settings, err := c.tools.ConfigGet(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	cfg, err := config.New(settings)
	if err != nil {
		// An invalid configuration is an operator problem, not a hook
		// failure: report it through the unit status and exit cleanly.
		logger.Errorf("configuration error: %v", err)
		return errors.Trace(c.tools.StatusSet(ctx, status.Blocked, err.Error()))
	}

	ids, err := c.tools.RelationIDs(ctx, c.endpoint)
	if err != nil {
		return errors.Trace(err)
	}
	if len(ids) > 0 {
		logger.Infof("leader: setting integration data on %q", ids[0])
		if err := c.tools.RelationSetApp(ctx, ids[0], cfg.IntegrationData()); err != nil {
			return errors.Trace(err)
		}
		logger.Infof("leader: integration data set")
	}
	return errors.Trace(c.setStatus(ctx, ids))
}

func (c *Charm) updateStatus(ctx context.Context) error {
	ids, err := c.tools.RelationIDs(ctx, c.endpoint)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.setStatus(ctx, ids))
}

func (c *Charm) setStatus(ctx context.Context, relationIDs []string) error {
	if len(relationIDs) == 0 {
		logger.Infof("no integration found")
		return errors.Trace(c.tools.StatusSet(ctx, status.Blocked, statusWaitingForIntegration))
	}
	return errors.Trace(c.tools.StatusSet(ctx, status.Active, ""))
}

// setWorkloadVersion publishes the charm's version file, if any, as the
// workload version. Best effort: a failure is logged and swallowed.
func (c *Charm) setWorkloadVersion(ctx context.Context) {
	data, err := os.ReadFile(filepath.Join(c.charmDir, "version"))
	if err != nil {
		logger.Debugf("no version file: %v", err)
		return
	}
	version, _, _ := strings.Cut(string(data), "\n")
	version = strings.TrimSpace(version)
	if version == "" {
		return
	}
	if err := c.tools.ApplicationVersionSet(ctx, version); err != nil {
		logger.Warningf("cannot set workload version: %v", err)
	}
}

func (c *Charm) relationHook(kind string) string {
	return c.endpoint + "-relation-" + kind
}
