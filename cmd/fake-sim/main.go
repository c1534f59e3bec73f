// Fake sim - a synthetic simulation executable speaking the bridge
// protocol, for running unity-env-demo without the engine.
package main

import (
	"os"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(cmd.NewFakeSim()))
}
