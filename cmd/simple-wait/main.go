// Simple wait - sleeps a seeded random time between one and two seconds.
package main

import (
	"os"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(cmd.NewSimpleWait()))
}
