package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/imu"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
	"github.com/relabs-tech/imu_fusion/internal/sensors"
)

// tick is what one producer step read, estimated and published.
type tick struct {
	Raw   imu.IMURaw
	Accel orientation.Pose
	Fused orientation.Pose
	Dt    float64
}

type producer struct {
	cfg    *config.Config
	src    imu.IMURawSource
	bias   imu.GyroBias
	filter *orientation.Filter
	pub    publisher

	last    time.Time
	lastLog time.Time
	samples int
	resets  int
}

func newProducer(cfg *config.Config, src imu.IMURawSource, bias imu.GyroBias, pub publisher) (*producer, error) {
	guard, err := orientation.ParseGuard(cfg.FilterGuard)
	if err != nil {
		return nil, err
	}
	filter, err := orientation.NewFilter(cfg.FilterAlpha, guard)
	if err != nil {
		return nil, err
	}
	return &producer{cfg: cfg, src: src, bias: bias, filter: filter, pub: pub}, nil
}

func finite(p orientation.Pose) bool {
	for _, v := range []float64{p.Roll, p.Pitch, p.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// step reads one raw sample and processes it. A read error leaves the
// filter untouched.
func (p *producer) step() (tick, error) {
	raw, err := p.src.ReadRaw()
	if err != nil {
		return tick{}, err
	}
	return p.process(raw)
}

// process runs raw through the filter and publishes the raw sample, the
// accelerometer-only pose and the fused pose. Publish errors are returned
// after every topic has been attempted.
func (p *producer) process(raw imu.IMURaw) (tick, error) {
	r := imu.Reading(raw, p.bias)
	t := tick{Raw: raw, Dt: orientation.Interval(p.last, r.Time, p.cfg.SampleInterval())}
	p.last = r.Time
	p.samples++

	t.Accel = orientation.ComputePoseFromAccel(r.Accel.X, r.Accel.Y, r.Accel.Z)
	t.Fused = orientation.PoseFromEuler(p.filter.Update(r.Accel, r.Gyro, t.Dt))
	if !finite(t.Fused) {
		// NaN in the carried state never washes out
		p.resets++
		log.Warnf("producer: non-finite fused pose %+v from ax=%d ay=%d az=%d, resetting filter (guard=%s, %d resets)",
			t.Fused, raw.Ax, raw.Ay, raw.Az, p.cfg.FilterGuard, p.resets)
		p.filter.Reset()
	}

	var errs []error
	if err := publishJSON(p.pub, p.cfg.TopicIMURaw, raw); err != nil {
		errs = append(errs, err)
	}
	for _, out := range []struct {
		topic string
		pose  orientation.Pose
	}{
		{p.cfg.TopicPoseAccel, t.Accel},
		{p.cfg.TopicPoseFused, t.Fused},
	} {
		if !finite(out.pose) {
			log.Debugf("producer: skipping non-finite pose on %s: %+v", out.topic, out.pose)
			continue
		}
		if err := publishJSON(p.pub, out.topic, out.pose); err != nil {
			errs = append(errs, err)
		}
	}
	return t, errors.Join(errs...)
}

// logTick writes a status line at most once per CONSOLE_LOG_INTERVAL.
func (p *producer) logTick(now time.Time, t tick) bool {
	if !p.lastLog.IsZero() && now.Sub(p.lastLog) < p.cfg.LogInterval() {
		return false
	}
	p.lastLog = now
	log.Printf("%s tick: %d samples | accel R=%.2f P=%.2f | fused R=%.2f P=%.2f Y=%.2f | dt=%.4fs | raw ax=%d ay=%d az=%d gx=%d gy=%d gz=%d",
		now.Format(time.RFC3339), p.samples,
		t.Accel.Roll, t.Accel.Pitch,
		t.Fused.Roll, t.Fused.Pitch, t.Fused.Yaw,
		t.Dt,
		t.Raw.Ax, t.Raw.Ay, t.Raw.Az,
		t.Raw.Gx, t.Raw.Gy, t.Raw.Gz,
	)
	return true
}

// poll drives the producer from a ticker, for sources read on demand.
func (p *producer) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t, err := p.step()
			if err != nil {
				log.Errorf("producer: %v", err)
				if t.Raw.Time.IsZero() {
					continue
				}
			}
			p.logTick(now, t)
		}
	}
}

// follow drives the producer from a source pushing samples at its own rate
// until ctx is done or the stream ends.
func (p *producer) follow(ctx context.Context, samples <-chan imu.IMURaw, streamErr func() error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-samples:
			if !ok {
				return streamErr()
			}
			t, err := p.process(raw)
			if err != nil {
				log.Errorf("producer: %v", err)
			}
			p.logTick(time.Now(), t)
		}
	}
}

// RunIMUProducer estimates attitude from the configured IMU and publishes
// the results to MQTT until ctx is done. Polled devices are read every
// IMU_SAMPLE_INTERVAL, streaming sources at their own rate.
func RunIMUProducer(ctx context.Context, cfg *config.Config) error {
	log.Printf("starting imufusion producer (%s via %s)", cfg.IMUName, cfg.IMUDriver)

	src, err := sensors.Open(cfg)
	if err != nil {
		return err
	}
	var closeOnce sync.Once
	closeSrc := func() {
		closeOnce.Do(func() {
			if err := src.Close(); err != nil {
				log.Warnf("producer: closing %s IMU: %v", cfg.IMUName, err)
			}
		})
	}
	defer closeSrc()
	// unblocks a source waiting on a silent device
	stop := context.AfterFunc(ctx, closeSrc)
	defer stop()

	var bias imu.GyroBias
	if cfg.GyroBiasSamples > 0 {
		log.Printf("producer: estimating gyro bias from %d samples, keep the sensor still", cfg.GyroBiasSamples)
		bias, err = imu.EstimateGyroBias(src, cfg.GyroBiasSamples)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s IMU: %w", cfg.IMUName, err)
		}
		log.Printf("producer: gyro bias x=%.1f y=%.1f z=%.1f counts", bias.X, bias.Y, bias.Z)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("producer: connected to MQTT at %s, starting publish loop", cfg.MQTTBroker)

	p, err := newProducer(cfg, src, bias, client)
	if err != nil {
		return err
	}
	log.Printf("producer: filter alpha=%.3f guard=%s", cfg.FilterAlpha, cfg.FilterGuard)

	if stream, ok := src.(sensors.Stream); ok {
		log.Printf("producer: following %s IMU stream", cfg.IMUName)
		err = p.follow(ctx, stream.Samples(), stream.Err)
	} else {
		p.poll(ctx, cfg.SampleInterval())
	}
	log.Printf("producer: shutting down after %d samples", p.samples)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
