package app

import (
	"bytes"
	"testing"

	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

func lit(pix []byte) int {
	n := 0
	for _, b := range pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestRenderPose(t *testing.T) {
	waiting := renderPose("imu0", orientation.Pose{}, false)
	if b := waiting.Bounds(); b.Dx() != displayWidth || b.Dy() != displayHeight {
		t.Fatalf("bounds = %v", b)
	}
	if len(waiting.Pix) != displayWidth*displayHeight/8 {
		t.Fatalf("frame is %d bytes", len(waiting.Pix))
	}
	if lit(waiting.Pix) == 0 {
		t.Fatal("waiting frame is blank")
	}

	a := renderPose("imu0", orientation.Pose{Roll: 12.3, Pitch: -4.5, Yaw: 180}, true)
	b := renderPose("imu0", orientation.Pose{Roll: 12.3, Pitch: -4.5, Yaw: 181}, true)
	if bytes.Equal(a.Pix, waiting.Pix) {
		t.Fatal("pose frame equals waiting frame")
	}
	if bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("yaw change not rendered")
	}
	if !bytes.Equal(a.Pix, renderPose("imu0", orientation.Pose{Roll: 12.3, Pitch: -4.5, Yaw: 180}, true).Pix) {
		t.Fatal("rendering is not deterministic")
	}
}
