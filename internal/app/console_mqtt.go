package app

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/imu"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

func formatPose(tag string, p orientation.Pose) string {
	return fmt.Sprintf("[%-5s] ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f", tag, p.Roll, p.Pitch, p.Yaw)
}

func formatRaw(s imu.IMURaw) string {
	return fmt.Sprintf("[IMU  ] %s ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d  afs=%d gfs=%d",
		s.Source, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.AccelRange, s.GyroRange)
}

// RunConsoleMQTT prints every pose and raw sample published by the producer
// until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config) error {
	return runConsole(ctx, cfg, os.Stdout)
}

func runConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeJSON(client, "console", cfg.TopicPoseAccel, func(p orientation.Pose) {
		fmt.Fprintln(out, formatPose("ACCEL", p))
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, "console", cfg.TopicPoseFused, func(p orientation.Pose) {
		fmt.Fprintln(out, formatPose("FUSED", p))
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, "console", cfg.TopicIMURaw, func(s imu.IMURaw) {
		fmt.Fprintln(out, formatRaw(s))
	}); err != nil {
		return err
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}
