package app

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

func TestSimulation(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	if err := runSimulation(context.Background(), cfg, 5*time.Second, &out); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d rows, want one per second:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "t=   1.00s") || !strings.HasPrefix(lines[4], "t=   5.00s") {
		t.Fatalf("unexpected rows:\n%s", out.String())
	}
	if strings.Contains(out.String(), "NaN") {
		t.Fatalf("NaN in output:\n%s", out.String())
	}

	for i, line := range lines {
		var at, trueRoll, truePitch, trueYaw, accelRoll, accelPitch, roll, pitch, yaw float64
		if _, err := fmt.Sscanf(line, "t=%fs true R=%f P=%f Y=%f accel R=%f P=%f fused R=%f P=%f Y=%f", &at, &trueRoll, &truePitch, &trueYaw,
			&accelRoll, &accelPitch, &roll, &pitch, &yaw); err != nil {
			t.Fatalf("row %d %q: %v", i, line, err)
		}
		if math.Abs(trueYaw-30*at) > 0.01 {
			t.Errorf("row %d: true yaw %v at t=%v", i, trueYaw, at)
		}
		if math.Abs(accelRoll-trueRoll) > 0.01 || math.Abs(accelPitch-truePitch) > 0.01 {
			t.Errorf("row %d: accel R=%v P=%v, true R=%v P=%v", i, accelRoll, accelPitch, trueRoll, truePitch)
		}
		if math.Abs(yaw-trueYaw) > 1 {
			t.Errorf("row %d: fused yaw %v, true %v", i, yaw, trueYaw)
		}
		// the zero initial state has decayed by the third second
		if at >= 3 && (math.Abs(roll-trueRoll) > 1 || math.Abs(pitch-truePitch) > 1) {
			t.Errorf("row %d: fused R=%v P=%v, true R=%v P=%v", i, roll, pitch, trueRoll, truePitch)
		}
	}
}

func TestSimulationStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := runSimulation(ctx, testConfig(t), time.Minute, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("output after cancel: %q", out.String())
	}
}

func TestSimulationRejectsBadGuard(t *testing.T) {
	cfg := testConfig(t)
	cfg.FilterGuard = "off"
	if err := runSimulation(context.Background(), cfg, time.Second, &bytes.Buffer{}); err == nil {
		t.Fatal("accepted unknown guard")
	}
}
