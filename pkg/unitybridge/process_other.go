//go:build !unix

package unitybridge

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// killProcess kills p. Children it spawned are not reached.
func killProcess(p *os.Process) error {
	return p.Kill()
}
