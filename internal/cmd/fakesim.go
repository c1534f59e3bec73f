package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge/simtest"
)

// NewFakeSim returns the fake-sim command, a stand-in simulation
// executable for unity-env-demo.
func NewFakeSim() *cobra.Command {
	var (
		port          int
		width, height int
		encoding      string
	)

	c, e := newCommand(&cobra.Command{
		Use:   "fake-sim",
		Short: "Serve synthetic camera images over the bridge protocol",
		Long: `fake-sim renders synthetic panoramic color, segmentation and depth
images and answers bridge requests on stdin/stdout, or on a websocket
when --bridge-port is given. Pass its path as --unity_exe_path.`,
		Args: cobra.NoArgs,
	}, nil)
	c.Flags().IntVar(&port, "bridge-port", 0, "serve ws://127.0.0.1:<port>/bridge instead of stdio")
	c.Flags().IntVar(&width, "width", simtest.DefaultWidth, "image width")
	c.Flags().IntVar(&height, "height", simtest.DefaultHeight, "image height")
	c.Flags().StringVar(&encoding, "encoding", unitybridge.EncodingRaw, "image encoding: raw or png")

	c.RunE = func(c *cobra.Command, _ []string) error {
		switch encoding {
		case unitybridge.EncodingRaw, unitybridge.EncodingPNG:
		default:
			return fmt.Errorf("unknown --encoding %q", encoding)
		}

		ctx, stop := signalContext(c.Context())
		defer stop()

		sim := simtest.New(
			simtest.WithSize(width, height),
			simtest.WithEncoding(encoding),
			simtest.WithLogger(e.logger),
		)
		if port > 0 {
			e.logger.Info("serving bridge websocket", "port", port)
			return sim.ListenAndServeWebSocket(ctx, port)
		}
		return sim.ServeStdio(ctx, c.InOrStdin(), c.OutOrStdout())
	}
	return c
}
