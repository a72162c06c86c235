package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

// RunSimulation runs duration worth of synthetic motion through the
// configured filter on a virtual clock and prints the true, accelerometer-only
// and fused attitude every CONSOLE_LOG_INTERVAL.
func RunSimulation(ctx context.Context, cfg *config.Config, duration time.Duration) error {
	return runSimulation(ctx, cfg, duration, os.Stdout)
}

const simulationRow = "t=%7.2fs  true R=%7.2f P=%7.2f Y=%8.2f  accel R=%7.2f P=%7.2f  fused R=%7.2f P=%7.2f Y=%8.2f\n"

func runSimulation(ctx context.Context, cfg *config.Config, duration time.Duration, out io.Writer) error {
	guard, err := orientation.ParseGuard(cfg.FilterGuard)
	if err != nil {
		return err
	}
	filter, err := orientation.NewFilter(cfg.FilterAlpha, guard)
	if err != nil {
		return err
	}

	interval := cfg.SampleInterval()
	start := time.Unix(0, 0).UTC()
	clock := start
	fused := orientation.NewFusedSource(orientation.NewMockSource(func() time.Time { return clock }), filter, interval)

	every := int(cfg.LogInterval() / interval)
	if every < 1 {
		every = 1
	}
	steps := int(duration / interval)
	log.Printf("simulate: %d samples at %s, alpha=%.3f guard=%s", steps, interval, filter.Alpha(), guard)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		clock = clock.Add(interval)

		pose, err := fused.Next()
		if err != nil {
			return err
		}
		if i%every != 0 {
			continue
		}

		t := clock.Sub(start).Seconds()
		truth := orientation.MockPose(t)
		accel, _ := orientation.MockMotion(t)
		a := orientation.ComputePoseFromAccel(accel.X, accel.Y, accel.Z)
		fmt.Fprintf(out, simulationRow,
			t, truth.Roll, truth.Pitch, truth.Yaw, a.Roll, a.Pitch, pose.Roll, pose.Pitch, pose.Yaw)
	}
	return nil
}
