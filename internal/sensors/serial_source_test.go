package sensors

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/imu_fusion/internal/imu"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

func TestIMUSentenceRoundTrip(t *testing.T) {
	want := imu.IMURaw{Ax: -120, Ay: 8, Az: 16390, Gx: 3, Gy: -32768, Gz: 32767, AccelRange: 0, GyroRange: 3}
	line := FormatIMUSentence(want)
	if !strings.HasPrefix(line, "$PIMU,-120,8,16390,") {
		t.Fatalf("FormatIMUSentence = %q", line)
	}

	m, err := ParseIMUSentence(line)
	if err != nil {
		t.Fatalf("ParseIMUSentence(%q): %v", line, err)
	}
	got := imu.IMURaw{Ax: m.Ax, Ay: m.Ay, Az: m.Az, Gx: m.Gx, Gy: m.Gy, Gz: m.Gz, AccelRange: m.AccelRange, GyroRange: m.GyroRange}
	if got != want {
		t.Fatalf("parsed %+v, want %+v", got, want)
	}
	if m.DataType() != TypeIMU {
		t.Fatalf("DataType = %q", m.DataType())
	}
}

func TestParseIMUSentenceErrors(t *testing.T) {
	good := FormatIMUSentence(imu.IMURaw{Az: 16384})
	tests := map[string]string{
		"no checksum":     strings.Split(good, "*")[0],
		"bad checksum":    strings.Split(good, "*")[0] + "*00",
		"overflow":        frame("PIMU,40000,0,0,0,0,0,0,0"),
		"bad full scale":  frame("PIMU,0,0,0,0,0,0,4,0"),
		"missing field":   frame("PIMU,0,0,0,0,0,0,0"),
		"not a number":    frame("PIMU,x,0,0,0,0,0,0,0"),
		"other sentences": "$GPGLL,3751.65,S,14507.36,E*77",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseIMUSentence(line); err == nil {
				t.Fatalf("ParseIMUSentence(%q) succeeded", line)
			}
		})
	}
}

// frame wraps an arbitrary body with framing and checksum.
func frame(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, cs)
}

func TestSerialSourceSkipsNoise(t *testing.T) {
	first := imu.IMURaw{Ax: 1, Ay: 2, Az: 3, Gx: 4, Gy: 5, Gz: 6, AccelRange: 1, GyroRange: 2}
	second := imu.IMURaw{Az: 16384}

	stream := strings.Join([]string{
		"garbage",
		"$GPGLL,3751.65,S,14507.36,E*77",
		strings.Split(FormatIMUSentence(second), "*")[0] + "*00",
		FormatIMUSentence(first),
		"",
		FormatIMUSentence(second),
	}, "\r\n") + "\r\n"

	// one tick per line read
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var lines int
	src := newStreamSource("wrist", io.NopCloser(strings.NewReader(stream)), func() time.Time {
		lines++
		return ts.Add(time.Duration(lines) * time.Millisecond)
	})

	var got []imu.IMURaw
	for r := range src.Samples() {
		got = append(got, r)
	}
	first.Source, first.Time = "wrist", ts.Add(4*time.Millisecond)
	second.Source, second.Time = "wrist", ts.Add(6*time.Millisecond)
	if !reflect.DeepEqual(got, []imu.IMURaw{first, second}) {
		t.Fatalf("samples = %+v", got)
	}

	if err := src.Err(); !errors.Is(err, io.EOF) {
		t.Fatalf("Err at end = %v, want EOF", err)
	}
	if _, err := src.ReadRaw(); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadRaw at end = %v, want EOF", err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSerialSourceReadRawReturnsNewest(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		b.WriteString(FormatIMUSentence(imu.IMURaw{Ax: int16(i)}) + "\r\n")
	}
	src := newStreamSource("wrist", io.NopCloser(strings.NewReader(b.String())), time.Now)
	<-src.exited

	r, err := src.ReadRaw()
	if err != nil {
		t.Fatal(err)
	}
	if r.Ax != 50 {
		t.Fatalf("ReadRaw ax = %d, want the newest sample 50", r.Ax)
	}
	if _, err := src.ReadRaw(); !errors.Is(err, io.EOF) {
		t.Fatalf("second ReadRaw = %v, want EOF", err)
	}
}

func TestSerialSourceCloseUnblocksRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := newStreamSource("wrist", pr, time.Now)

	errc := make(chan error, 1)
	go func() {
		_, err := src.ReadRaw()
		errc <- err
	}()

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("ReadRaw after Close = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadRaw still blocked after Close")
	}

	<-src.exited
	if err := src.Err(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Err = %v, want ErrClosed", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMockSourceMatchesMotion(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	src := NewMockSource("sim", 1, 1, func() time.Time { return clock })

	clock = start.Add(1500 * time.Millisecond)
	raw, err := src.ReadRaw()
	if err != nil {
		t.Fatal(err)
	}

	wantAccel, wantGyro := orientation.MockMotion(1.5)
	accel, gyro := raw.Accel(), raw.Gyro()

	// one count of quantization at ±4g and ±500°/s
	accelLSB := orientation.StandardGravity / 8192
	gyroLSB := math.Pi / 180 / 65.5
	for _, c := range []struct{ got, want, tol float64 }{
		{accel.X, wantAccel.X, accelLSB},
		{accel.Y, wantAccel.Y, accelLSB},
		{accel.Z, wantAccel.Z, accelLSB},
		{gyro.X, wantGyro.X, gyroLSB},
		{gyro.Y, wantGyro.Y, gyroLSB},
		{gyro.Z, wantGyro.Z, gyroLSB},
	} {
		if math.Abs(c.got-c.want) > c.tol {
			t.Errorf("got %v, want %v ± %v", c.got, c.want, c.tol)
		}
	}
	if !raw.Time.Equal(clock) || raw.Source != "sim" {
		t.Errorf("metadata = %+v", raw)
	}
}

func TestToCountsSaturates(t *testing.T) {
	if toCounts(1e9) != math.MaxInt16 || toCounts(-1e9) != math.MinInt16 || toCounts(2.5) != 3 {
		t.Fatal("toCounts does not saturate or round")
	}
}
