package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/plotting"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/pose"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
)

// Sensors and command used by the unity demo.
const (
	sensorPano         = "agent/t_pano_camera"
	sensorSegmentation = "agent/t_pano_segmentation_camera"
	sensorDepth        = "agent/t_pano_depth_camera"

	moveCommand = "agent move 2.0 0.77 0.0 0"

	// depthVMax is the top of the depth colormap, in meters.
	depthVMax = 12.0
)

// moveTarget is where moveCommand places the agent, in the ground plane.
var moveTarget = pose.Pose{X: 2.0, Y: 0.77, Yaw: 0}

// NewUnityEnvDemo returns the unity-env-demo command. It grabs the three
// panoramic cameras, moves the agent, grabs them again, and lays the six
// images out in a 3x2 figure: before on the left, after on the right.
func NewUnityEnvDemo() *cobra.Command {
	var out outputFlags

	c, e := newCommand(&cobra.Command{
		Use:   "unity-env-demo",
		Short: "Capture camera images from the simulation before and after a move",
		Args:  cobra.NoArgs,
	}, map[string]string{
		"unity.exe_path":  "unity_exe_path",
		"unity.transport": "transport",
	})
	out.register(c, 300)
	c.Flags().String("unity_exe_path", "", "simulation executable (env: UNITY_EXE_PATH)")
	c.Flags().String("transport", "stdio", "bridge transport: stdio or websocket")

	c.RunE = func(c *cobra.Command, _ []string) error {
		if err := out.parse(); err != nil {
			return err
		}
		u := e.cfg.Unity
		if u.ExePath == "" {
			return errors.New("--unity_exe_path is required")
		}
		if !out.hasTarget() {
			e.logger.Warn("no --output_image or --xpassthrough given, the figure will be discarded")
		}

		bcfg := unitybridge.DefaultConfig(u.ExePath)
		bcfg.Transport = u.Transport
		bcfg.StartupTimeout = u.StartupTimeout
		bcfg.RequestTimeout = u.RequestTimeout
		bcfg.StopTimeout = u.StopTimeout

		fig := plotting.NewFigure(6, 9, out.dpi)
		ctx, stop := signalContext(c.Context())
		defer stop()

		err := unitybridge.With(ctx, bcfg, func(s *unitybridge.Session) error {
			start := time.Now()
			pano, err := s.GetImage(ctx, sensorPano)
			if err != nil {
				return err
			}
			e.logger.Info("time to get first image", "elapsed", time.Since(start))
			if err := capture(ctx, s, fig, 1, pano); err != nil {
				return err
			}

			if err := s.SendMessage(ctx, moveCommand); err != nil {
				return err
			}
			// The agent spawns at the origin.
			odom := pose.Odom(moveTarget, pose.Pose{})
			e.logger.Info("agent moved", "command", moveCommand, "odom_x", odom.X, "odom_y", odom.Y, "odom_yaw", odom.Yaw)
			// The first frame after a move can still show the old pose.
			if _, err := s.GetImage(ctx, sensorPano); err != nil {
				return err
			}

			start = time.Now()
			pano, err = s.GetImage(ctx, sensorPano)
			if err != nil {
				return err
			}
			e.logger.Info("time to get second image", "elapsed", time.Since(start))
			if err := capture(ctx, s, fig, 2, pano); err != nil {
				return err
			}

			logStats(e.logger, s.Stats())
			return nil
		}, unitybridge.WithLogger(e.logger))
		if err != nil {
			return err
		}

		if !out.hasTarget() {
			return nil
		}
		return out.emit(ctx, fig, e.logger)
	}
	return c
}

// capture fetches the segmentation and depth images and draws them with
// pano into figure column col (1 or 2).
func capture(ctx context.Context, s *unitybridge.Session, fig *plotting.Figure, col int, pano *unitybridge.Frame) error {
	seg, err := s.GetImage(ctx, sensorSegmentation)
	if err != nil {
		return err
	}
	depthFrame, err := s.GetImage(ctx, sensorDepth)
	if err != nil {
		return err
	}
	depths, err := depthFrame.Depths(unitybridge.DefaultDepthRange)
	if err != nil {
		return fmt.Errorf("decode depth image: %w", err)
	}

	if _, err := fig.Subplot(3, 2, col); err != nil {
		return err
	}
	fig.ImShow(pano.Image())
	if _, err := fig.Subplot(3, 2, col+2); err != nil {
		return err
	}
	fig.ImShow(seg.Image())
	if _, err := fig.Subplot(3, 2, col+4); err != nil {
		return err
	}
	return fig.ImShowGrid(depths, 0, depthVMax)
}

func logStats(logger *slog.Logger, st unitybridge.Stats) {
	logger.Debug("bridge stats",
		"requests", st.Requests,
		"images", st.Images,
		"image_bytes", st.ImageBytes,
		"failures", st.Failures,
		"last_latency", st.LastLatency,
	)
}
