package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/imu"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

// consoleState is the latest of every topic the dashboard shows.
type consoleState struct {
	mu        sync.Mutex
	accel     orientation.Pose
	fused     orientation.Pose
	raw       imu.IMURaw
	haveAccel bool
	haveFused bool
	haveRaw   bool
	messages  int
}

func (s *consoleState) setAccel(p orientation.Pose) {
	s.mu.Lock()
	s.accel, s.haveAccel = p, true
	s.messages++
	s.mu.Unlock()
}

func (s *consoleState) setFused(p orientation.Pose) {
	s.mu.Lock()
	s.fused, s.haveFused = p, true
	s.messages++
	s.mu.Unlock()
}

func (s *consoleState) setRaw(r imu.IMURaw) {
	s.mu.Lock()
	s.raw, s.haveRaw = r, true
	s.messages++
	s.mu.Unlock()
}

func poseRow(name string, p orientation.Pose, have bool) []string {
	if !have {
		return []string{name, "-", "-", "-"}
	}
	return []string{name, fmt.Sprintf("%.2f", p.Roll), fmt.Sprintf("%.2f", p.Pitch), fmt.Sprintf("%.2f", p.Yaw)}
}

func (s *consoleState) rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := [][]string{
		{"", "Roll", "Pitch", "Yaw"},
		poseRow("accel", s.accel, s.haveAccel),
		poseRow("fused", s.fused, s.haveFused),
	}
	if s.haveRaw {
		rows = append(rows,
			[]string{"accel raw", fmt.Sprint(s.raw.Ax), fmt.Sprint(s.raw.Ay), fmt.Sprint(s.raw.Az)},
			[]string{"gyro raw", fmt.Sprint(s.raw.Gx), fmt.Sprint(s.raw.Gy), fmt.Sprint(s.raw.Gz)},
		)
	} else {
		rows = append(rows, []string{"accel raw", "-", "-", "-"}, []string{"gyro raw", "-", "-", "-"})
	}
	return rows
}

func (s *consoleState) title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveRaw {
		return fmt.Sprintf(" imufusion | %d messages ", s.messages)
	}
	return fmt.Sprintf(" imufusion | %s | %d messages | %s ", s.raw.Source, s.messages, s.raw.Time.Format("15:04:05.000"))
}

// RunConsoleTUI shows the latest poses and raw sample in a terminal table
// until q, Ctrl-C or ctx is done.
func RunConsoleTUI(ctx context.Context, cfg *config.Config) error {
	state := &consoleState{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// subscribe first, failures must stay readable
	if err := subscribeJSON(client, "console", cfg.TopicPoseAccel, state.setAccel); err != nil {
		return err
	}
	if err := subscribeJSON(client, "console", cfg.TopicPoseFused, state.setFused); err != nil {
		return err
	}
	if err := subscribeJSON(client, "console", cfg.TopicIMURaw, state.setRaw); err != nil {
		return err
	}

	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	table := widgets.NewTable()
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.TextAlignment = ui.AlignRight
	table.ColumnWidths = []int{12, 12, 12, 12}
	table.SetRect(0, 0, 52, 13)

	draw := func() {
		table.Title = state.title()
		table.Rows = state.rows()
		ui.Render(table)
	}
	draw()

	ticker := time.NewTicker(cfg.DisplayInterval())
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			draw()
		}
	}
}
