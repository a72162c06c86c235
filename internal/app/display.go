package app

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// textFrame draws up to four lines of 7x13 text on a blank frame.
func textFrame(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}

func renderPose(name string, pose orientation.Pose, haveData bool) *image1bit.VerticalLSB {
	if !haveData {
		return textFrame("", "Attitude "+name, "Waiting...")
	}
	return textFrame(
		fmt.Sprintf("%s fused", name),
		fmt.Sprintf("R: %7.1f", pose.Roll),
		fmt.Sprintf("P: %7.1f", pose.Pitch),
		fmt.Sprintf("Y: %7.1f", pose.Yaw),
	)
}

// RunDisplay renders the fused pose on an SSD1306 OLED every
// DISPLAY_UPDATE_INTERVAL until ctx is done.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.DisplayI2CBus, err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized %s", dev)

	if err := dev.Draw(dev.Bounds(), textFrame("", "  imufusion", " "+cfg.IMUName), image.Point{}); err != nil {
		log.Warnf("display: error showing splash: %v", err)
	}

	var (
		mu       sync.RWMutex
		lastPose orientation.Pose
		havePose bool
	)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeJSON(client, "display", cfg.TopicPoseFused, func(p orientation.Pose) {
		mu.Lock()
		lastPose, havePose = p, true
		mu.Unlock()
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.DisplayInterval())
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mu.RLock()
			pose, have := lastPose, havePose
			mu.RUnlock()

			if err := dev.Draw(dev.Bounds(), renderPose(cfg.IMUName, pose, have), image.Point{}); err != nil {
				log.Warnf("display: error updating display: %v", err)
			}
		}
	}
}
