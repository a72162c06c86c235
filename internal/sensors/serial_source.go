package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/imu"
)

// TypeIMU is the sentence type of the proprietary $PIMU sentence:
//
//	$PIMU,ax,ay,az,gx,gy,gz,afs,gfs*CS
//
// Axes are raw sensor counts, afs/gfs the full-scale selections (0-3).
const TypeIMU = "IMU"

// IMUSentence is a parsed $PIMU sentence.
type IMUSentence struct {
	nmea.BaseSentence
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
	AccelRange byte
	GyroRange  byte
}

var imuSentenceParser = &nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeIMU: parseIMUSentence,
	},
}

func parseIMUSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	if len(s.Fields) != 8 {
		return nil, fmt.Errorf("nmea: PIMU expects 8 fields, got %d", len(s.Fields))
	}

	axis := func(i int, name string) int16 {
		v := p.Int64(i, name)
		if v < math.MinInt16 || v > math.MaxInt16 {
			p.SetErr(name, s.Fields[i])
		}
		return int16(v)
	}
	fullScale := func(i int, name string) byte {
		v := p.Int64(i, name)
		if v < 0 || v > 3 {
			p.SetErr(name, s.Fields[i])
		}
		return byte(v)
	}

	m := IMUSentence{
		BaseSentence: s,
		Ax:           axis(0, "ax"),
		Ay:           axis(1, "ay"),
		Az:           axis(2, "az"),
		Gx:           axis(3, "gx"),
		Gy:           axis(4, "gy"),
		Gz:           axis(5, "gz"),
		AccelRange:   fullScale(6, "accel full scale"),
		GyroRange:    fullScale(7, "gyro full scale"),
	}
	return m, p.Err()
}

// ParseIMUSentence parses one $PIMU line. The checksum is mandatory.
func ParseIMUSentence(line string) (IMUSentence, error) {
	s, err := imuSentenceParser.Parse(line)
	if err != nil {
		return IMUSentence{}, err
	}
	m, ok := s.(IMUSentence)
	if !ok {
		return IMUSentence{}, fmt.Errorf("nmea: not a PIMU sentence: %s", s.Prefix())
	}
	return m, nil
}

// FormatIMUSentence renders a raw sample as a $PIMU line without line ending.
func FormatIMUSentence(r imu.IMURaw) string {
	body := fmt.Sprintf("P%s,%d,%d,%d,%d,%d,%d,%d,%d", TypeIMU,
		r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz, r.AccelRange, r.GyroRange)
	return "$" + body + "*" + nmea.Checksum(body)
}

// ErrClosed is returned by a streaming source read after Close.
var ErrClosed = errors.New("source closed")

// streamBuffer bounds the samples queued between the port reader and the
// consumer. When it is full the oldest sample is dropped.
const streamBuffer = 8

// serialSource decodes $PIMU sentences on its own goroutine. Each sample is
// stamped when its line arrives, not when it is consumed.
type serialSource struct {
	name    string
	port    io.ReadCloser
	now     func() time.Time
	samples chan imu.IMURaw

	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	err     error
	dropped int
}

// NewSerialSource opens a serial port streaming $PIMU sentences, typically a
// microcontroller sampling the IMU on its own I2C bus.
func NewSerialSource(name, portName string, baud int) (Source, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: open serial %s: %w", name, portName, err)
	}
	log.Printf("%s IMU: serial port opened on %s at %d baud", name, portName, baud)
	return newStreamSource(name, port, time.Now), nil
}

func newStreamSource(name string, port io.ReadCloser, now func() time.Time) *serialSource {
	s := &serialSource{
		name:    name,
		port:    port,
		now:     now,
		samples: make(chan imu.IMURaw, streamBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *serialSource) readLoop() {
	defer close(s.exited)
	defer close(s.samples)

	reader := bufio.NewReader(s.port)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-s.done:
				err = ErrClosed
			default:
			}
			s.setErr(fmt.Errorf("%s IMU serial read: %w", s.name, err))
			return
		}
		stamp := s.now()

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$P"+TypeIMU) {
			continue
		}
		m, err := ParseIMUSentence(line)
		if err != nil {
			log.Debugf("%s IMU: dropping sentence %q: %v", s.name, line, err)
			continue
		}
		s.push(imu.IMURaw{
			Source:     s.name,
			Time:       stamp,
			Ax:         m.Ax,
			Ay:         m.Ay,
			Az:         m.Az,
			Gx:         m.Gx,
			Gy:         m.Gy,
			Gz:         m.Gz,
			AccelRange: m.AccelRange,
			GyroRange:  m.GyroRange,
		})
	}
}

// push queues r, evicting the oldest queued sample when the consumer lags.
func (s *serialSource) push(r imu.IMURaw) {
	for {
		select {
		case s.samples <- r:
			return
		default:
		}
		select {
		case <-s.samples:
			s.mu.Lock()
			s.dropped++
			if s.dropped%100 == 1 {
				log.Debugf("%s IMU: consumer lagging, %d samples dropped", s.name, s.dropped)
			}
			s.mu.Unlock()
		default:
		}
	}
}

func (s *serialSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Samples returns the decoded samples in arrival order. The channel is
// closed when the port fails or the source is closed; Err then reports why.
func (s *serialSource) Samples() <-chan imu.IMURaw { return s.samples }

// Err returns the error that ended the stream, or nil while it is running.
func (s *serialSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ReadRaw waits for a sample and returns the newest one queued, discarding
// older ones.
func (s *serialSource) ReadRaw() (imu.IMURaw, error) {
	var r imu.IMURaw
	select {
	case <-s.done:
		return imu.IMURaw{}, fmt.Errorf("%s IMU: %w", s.name, ErrClosed)
	case v, ok := <-s.samples:
		if !ok {
			return imu.IMURaw{}, s.Err()
		}
		r = v
	}
	for {
		select {
		case v, ok := <-s.samples:
			if !ok {
				return r, nil
			}
			r = v
		default:
			return r, nil
		}
	}
}

// Close stops the reader. The port is closed to unblock a pending read.
func (s *serialSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}
