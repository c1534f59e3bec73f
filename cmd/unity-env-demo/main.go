// Unity env demo - grabs panoramic camera images from the simulation
// before and after moving the agent and plots them side by side.
package main

import (
	"os"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(cmd.NewUnityEnvDemo()))
}
