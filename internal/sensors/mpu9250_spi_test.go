package sensors

import (
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/devices/v3/mpu9250"
)

// The driver takes its transport by value while the SPI constructor returns
// a pointer; NewMPU9250SPI dereferences between the two.
var (
	_ func(string, gpio.PinOut) (*mpu9250.Transport, error) = mpu9250.NewSpiTransport
	_ func(mpu9250.Transport) (*mpu9250.MPU9250, error)     = mpu9250.New
)

func TestMPU9250SPIUnknownChipSelect(t *testing.T) {
	src, err := NewMPU9250SPI("wrist", "/dev/spidev0.0", "NO_SUCH_PIN", 0, 0)
	if err == nil || src != nil {
		t.Fatalf("NewMPU9250SPI = %v, %v", src, err)
	}
	if !strings.Contains(err.Error(), `CS pin "NO_SUCH_PIN" not found`) {
		t.Fatalf("error = %v", err)
	}
}
