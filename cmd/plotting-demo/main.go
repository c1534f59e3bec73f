// Plotting demo - plots a grid of random values and shows it in a
// browser viewer or writes it to a PNG file.
package main

import (
	"os"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(cmd.NewPlottingDemo()))
}
