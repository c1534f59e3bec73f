// SqrtSum demo - times gonum, a plain loop and a parallel reduction
// taking the sqrt and sum of a random vector.
package main

import (
	"os"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(cmd.NewSqrtSumDemo()))
}
