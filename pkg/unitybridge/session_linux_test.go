//go:build linux

package unitybridge_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge/simtest"
)

// processRunning reports whether pid exists and is not a zombie. An
// orphan is reaped by whoever inherits it, which may be never in a
// container.
func processRunning(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state field follows the parenthesised command name.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] != 'Z'
}

func TestCloseKillsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	cfg := helperConfig(simtest.ModeLauncher)
	cfg.Env = append(cfg.Env, simtest.PIDFileEnv+"="+pidFile)

	var child int
	err := unitybridge.With(context.Background(), cfg, func(s *unitybridge.Session) error {
		data, err := os.ReadFile(pidFile)
		require.NoError(t, err)
		child, err = strconv.Atoi(string(data))
		require.NoError(t, err)
		assert.True(t, processRunning(child), "child %d not running", child)
		return nil
	}, unitybridge.WithLogger(quiet))
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for processRunning(child) {
		if time.Now().After(deadline) {
			t.Fatalf("grandchild %d still running after close", child)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
