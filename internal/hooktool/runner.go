// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package hooktool invokes the Juju hook tools (config-get, relation-set
// and friends) that the unit agent places on the PATH of a running hook.
package hooktool

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
	"github.com/juju/retry"

	"github.com/canonical/content-cache-backends-config-operator/internal/status"
)

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
)

// RunnerParams holds the configuration for a Runner.
type RunnerParams struct {
	// Clock drives the retry delays. Defaults to clock.WallClock.
	Clock clock.Clock

	// Attempts is the number of times a tool invocation is tried before
	// giving up. Defaults to 3.
	Attempts int

	// Delay is the initial delay between attempts, doubled each retry.
	// Defaults to 200ms.
	Delay time.Duration
}

// Runner executes hook tools as subprocesses.
//
// An invocation can fail transiently while the unit agent restarts, so
// execution failures are retried with backoff. A tool that runs and
// refuses the request prints "ERROR <message>" on stderr; that is a
// permanent failure and is returned to the caller as-is.
type Runner struct {
	clock    clock.Clock
	attempts int
	delay    time.Duration
}

// NewRunner returns a Runner using the supplied params, with defaults
// filled in for any zero value.
func NewRunner(p RunnerParams) *Runner {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Delay <= 0 {
		p.Delay = defaultDelay
	}
	return &Runner{clock: p.Clock, attempts: p.Attempts, delay: p.Delay}
}

// ConfigGet returns the charm configuration, including unset options with
// default values.
func (r *Runner) ConfigGet(ctx context.Context) (map[string]interface{}, error) {
	out, err := r.run(ctx, "config-get", "--format=json", "--all")
	if err != nil {
		return nil, errors.Trace(err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(out, &settings); err != nil {
		return nil, errors.Annotate(err, "decoding config-get output")
	}
	return settings, nil
}

// RelationIDs returns the ids of all current relations on the given
// endpoint, in natural order, each of the form "<endpoint>:<number>".
func (r *Runner) RelationIDs(ctx context.Context, endpoint string) ([]string, error) {
	out, err := r.run(ctx, "relation-ids", "--format=json", endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ids []string
	if err := json.Unmarshal(out, &ids); err != nil {
		return nil, errors.Annotate(err, "decoding relation-ids output")
	}
	naturalsort.Sort(ids)
	return ids, nil
}

// RelationSetApp writes settings into the application data bag of the
// given relation. Only the leader unit may call this. Writing an empty
// settings map is a no-op.
func (r *Runner) RelationSetApp(ctx context.Context, relationID string, settings map[string]string) error {
	if len(settings) == 0 {
		return nil
	}
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := []string{"--app", "-r", relationID, "--"}
	for _, key := range keys {
		args = append(args, key+"="+settings[key])
	}
	_, err := r.run(ctx, "relation-set", args...)
	return errors.Trace(err)
}

// StatusSet sets the workload status of the unit.
func (r *Runner) StatusSet(ctx context.Context, st status.Status, message string) error {
	if !status.KnownWorkloadStatus(st) {
		return errors.NotValidf("workload status %q", st)
	}
	args := []string{st.String()}
	if message != "" {
		args = append(args, message)
	}
	_, err := r.run(ctx, "status-set", args...)
	return errors.Trace(err)
}

// IsLeader reports whether the local unit is guaranteed to be the
// application leader for at least 30 seconds.
func (r *Runner) IsLeader(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "is-leader", "--format=json")
	if err != nil {
		return false, errors.Trace(err)
	}
	var leader bool
	if err := json.Unmarshal(out, &leader); err != nil {
		return false, errors.Annotate(err, "decoding is-leader output")
	}
	return leader, nil
}

// ApplicationVersionSet sets the workload version shown in juju status.
func (r *Runner) ApplicationVersionSet(ctx context.Context, version string) error {
	_, err := r.run(ctx, "application-version-set", "--", version)
	return errors.Trace(err)
}

// JujuLog writes a message to the Juju model log. It is fired and
// forgotten: no retries, and the error is only returned so the caller can
// fall back to stderr. It deliberately does not use the loggo logger,
// which may itself be writing through JujuLog.
func (r *Runner) JujuLog(level string, message string) error {
	return exec.Command("juju-log", "--log-level", level, "--", message).Run()
}

// ToolError describes a hook tool that ran and refused the request.
type ToolError struct {
	Tool    string
	Message string
}

// Error implements error.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

func (r *Runner) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	var out []byte
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			out, err = runOnce(ctx, tool, args...)
			return err
		},
		IsFatalError: func(err error) bool {
			var toolErr *ToolError
			return stderrors.As(err, &toolErr) || stderrors.Is(err, exec.ErrNotFound)
		},
		Attempts:    r.attempts,
		Delay:       r.delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})
	return out, errors.Trace(err)
}

func runOnce(ctx context.Context, tool string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg, ok := toolErrorMessage(stderr.String()); ok {
			return nil, &ToolError{Tool: tool, Message: msg}
		}
		return nil, errors.Annotatef(err, "running %q", tool)
	}
	return stdout.Bytes(), nil
}

// toolErrorMessage extracts the message from the "ERROR <message>" line a
// hook tool prints when it understood the request and refused it.
func toolErrorMessage(stderr string) (string, bool) {
	for _, line := range strings.Split(stderr, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "ERROR "); ok {
			return rest, true
		}
	}
	return "", false
}
