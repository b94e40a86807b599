// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

package hooktool_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/juju/retry"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/content-cache-backends-config-operator/internal/hooktool"
	"github.com/canonical/content-cache-backends-config-operator/internal/status"
)

type RunnerSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&RunnerSuite{})

func (s *RunnerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	// IsolationSuite empties PATH; the patched tool scripts still need
	// the standard utilities to run.
	s.PatchEnvironment("PATH", "/usr/bin:/bin")
}

func (s *RunnerSuite) newRunner() *hooktool.Runner {
	return hooktool.NewRunner(hooktool.RunnerParams{Delay: time.Millisecond})
}

func (s *RunnerSuite) TestConfigGet(c *gc.C) {
	testing.PatchExecutable(c, s, "config-get",
		`#!/bin/bash
echo '{"hostname": "example.com", "health_check_interval": 30}'`)
	settings, err := s.newRunner().ConfigGet(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(settings, jc.DeepEquals, map[string]interface{}{
		"hostname":              "example.com",
		"health_check_interval": float64(30),
	})
}

func (s *RunnerSuite) TestRelationIDsNaturalOrder(c *gc.C) {
	testing.PatchExecutable(c, s, "relation-ids",
		`#!/bin/bash
echo '["cache-config:10", "cache-config:2"]'`)
	ids, err := s.newRunner().RelationIDs(context.Background(), "cache-config")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ids, jc.DeepEquals, []string{"cache-config:2", "cache-config:10"})
}

func (s *RunnerSuite) TestRelationIDsEmpty(c *gc.C) {
	testing.PatchExecutable(c, s, "relation-ids",
		`#!/bin/bash
echo '[]'`)
	ids, err := s.newRunner().RelationIDs(context.Background(), "cache-config")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ids, gc.HasLen, 0)
}

func (s *RunnerSuite) TestIsLeader(c *gc.C) {
	testing.PatchExecutable(c, s, "is-leader",
		`#!/bin/bash
echo 'true'`)
	leader, err := s.newRunner().IsLeader(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(leader, jc.IsTrue)
}

func (s *RunnerSuite) TestRelationSetAppSortsKeys(c *gc.C) {
	testing.PatchExecutableAsEchoArgs(c, s, "relation-set")
	err := s.newRunner().RelationSetApp(context.Background(), "cache-config:0", map[string]string{
		"path":     "/",
		"hostname": "example.com",
	})
	c.Assert(err, jc.ErrorIsNil)
	testing.AssertEchoArgs(c, "relation-set",
		"--app", "-r", "cache-config:0", "--", "hostname=example.com", "path=/")
}

func (s *RunnerSuite) TestRelationSetAppEmptyIsNoop(c *gc.C) {
	// No relation-set executable is patched in: the call must not try
	// to execute anything.
	err := s.newRunner().RelationSetApp(context.Background(), "cache-config:0", nil)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *RunnerSuite) TestStatusSet(c *gc.C) {
	testing.PatchExecutableAsEchoArgs(c, s, "status-set")
	err := s.newRunner().StatusSet(context.Background(), status.Blocked, "Waiting for integration")
	c.Assert(err, jc.ErrorIsNil)
	testing.AssertEchoArgs(c, "status-set", "blocked", "Waiting for integration")
}

func (s *RunnerSuite) TestStatusSetNoMessage(c *gc.C) {
	testing.PatchExecutableAsEchoArgs(c, s, "status-set")
	err := s.newRunner().StatusSet(context.Background(), status.Active, "")
	c.Assert(err, jc.ErrorIsNil)
	testing.AssertEchoArgs(c, "status-set", "active")
}

func (s *RunnerSuite) TestStatusSetRejectsUnknownStatus(c *gc.C) {
	err := s.newRunner().StatusSet(context.Background(), status.Error, "boom")
	c.Check(err, jc.Satisfies, errors.IsNotValid)
}

func (s *RunnerSuite) TestApplicationVersionSet(c *gc.C) {
	testing.PatchExecutableAsEchoArgs(c, s, "application-version-set")
	err := s.newRunner().ApplicationVersionSet(context.Background(), "1.2.3")
	c.Assert(err, jc.ErrorIsNil)
	testing.AssertEchoArgs(c, "application-version-set", "--", "1.2.3")
}

func (s *RunnerSuite) TestToolErrorNotRetried(c *gc.C) {
	counter := filepath.Join(c.MkDir(), "count")
	testing.PatchExecutable(c, s, "relation-ids", fmt.Sprintf(
		`#!/bin/bash
echo run >> %q
echo 'ERROR invalid value "bad" for option -r' >&2
exit 1`, counter))
	_, err := s.newRunner().RelationIDs(context.Background(), "cache-config")
	c.Assert(err, gc.ErrorMatches, `relation-ids: invalid value "bad" for option -r`)
	data, readErr := os.ReadFile(counter)
	c.Assert(readErr, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "run\n")
}

func (s *RunnerSuite) TestTransientFailureRetried(c *gc.C) {
	counter := filepath.Join(c.MkDir(), "count")
	testing.PatchExecutable(c, s, "relation-ids", fmt.Sprintf(
		`#!/bin/bash
count=$(cat %[1]q 2>/dev/null || echo 0)
count=$((count+1))
echo $count > %[1]q
if [ $count -lt 3 ]; then
    exit 1
fi
echo '[]'`, counter))
	ids, err := s.newRunner().RelationIDs(context.Background(), "cache-config")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ids, gc.HasLen, 0)
}

func (s *RunnerSuite) TestMissingToolFailsImmediately(c *gc.C) {
	// No config-get on the PATH: running outside a hook environment.
	_, err := s.newRunner().ConfigGet(context.Background())
	c.Assert(err, gc.ErrorMatches,
		`running "config-get": exec: "config-get": executable file not found in \$PATH`)
	c.Check(retry.IsAttemptsExceeded(err), jc.IsFalse)
}

func (s *RunnerSuite) TestAttemptsExhausted(c *gc.C) {
	testing.PatchExecutable(c, s, "is-leader",
		`#!/bin/bash
exit 1`)
	_, err := s.newRunner().IsLeader(context.Background())
	c.Assert(err, gc.NotNil)
	c.Check(err, jc.Satisfies, retry.IsAttemptsExceeded)
}
