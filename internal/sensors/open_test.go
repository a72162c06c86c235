package sensors

import (
	"errors"
	"testing"

	"github.com/relabs-tech/imu_fusion/internal/config"
)

func TestOpenMock(t *testing.T) {
	cfg := testConfig(t)
	cfg.IMUDriver = config.DriverMock
	cfg.IMUName = "sim"

	src, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	raw, err := src.ReadRaw()
	if err != nil {
		t.Fatal(err)
	}
	if raw.Source != "sim" || raw.Az == 0 {
		t.Fatalf("ReadRaw = %+v", raw)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.IMUDriver = "lsm9ds1"
	if _, err := Open(cfg); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open error = %v, want ErrUnknownDriver", err)
	}
}

// testConfig returns the built-in defaults.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}
