package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/simplewait"
)

// NewSimpleWait returns the simple-wait command.
func NewSimpleWait() *cobra.Command {
	var seed int64

	c, e := newCommand(&cobra.Command{
		Use:   "simple-wait",
		Short: "Sleep for a seeded random time between one and two seconds",
		Args:  cobra.NoArgs,
	}, nil)
	c.Flags().Int64Var(&seed, "seed", 0, "random seed")
	_ = c.MarkFlagRequired("seed")

	c.RunE = func(c *cobra.Command, _ []string) error {
		ctx, stop := signalContext(c.Context())
		defer stop()

		printf(c, "Seed %d: Starting\n", seed)
		if err := simplewait.Run(ctx, seed, e.logger); err != nil {
			return err
		}
		printf(c, "Seed %d: Ending\n", seed)
		return nil
	}
	return c
}
