package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the file read when no --config flag is given.
const DefaultConfigPath = "./imufusion_config.txt"

// EnvPrefix prefixes environment overrides, e.g. IMUFUSION_FILTER_ALPHA.
const EnvPrefix = "IMUFUSION"

// IMU drivers understood by sensors.Open.
const (
	DriverMPU6050    = "mpu6050"
	DriverMPU9250    = "mpu9250"
	DriverMPU9250SPI = "mpu9250_spi"
	DriverSerial     = "serial"
	DriverMock       = "mock"
)

// ErrExists is returned by DumpTemplate when the target file is already there.
var ErrExists = errors.New("config file already exists")

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string `mapstructure:"mqtt_broker" yaml:"MQTT_BROKER"`
	MQTTClientIDProducer string `mapstructure:"mqtt_client_id_producer" yaml:"MQTT_CLIENT_ID_PRODUCER"`
	MQTTClientIDConsole  string `mapstructure:"mqtt_client_id_console" yaml:"MQTT_CLIENT_ID_CONSOLE"`
	MQTTClientIDWeb      string `mapstructure:"mqtt_client_id_web" yaml:"MQTT_CLIENT_ID_WEB"`
	MQTTClientIDDisplay  string `mapstructure:"mqtt_client_id_display" yaml:"MQTT_CLIENT_ID_DISPLAY"`

	// Topics
	TopicPoseAccel string `mapstructure:"topic_pose_accel" yaml:"TOPIC_POSE_ACCEL"`
	TopicPoseFused string `mapstructure:"topic_pose_fused" yaml:"TOPIC_POSE_FUSED"`
	TopicIMURaw    string `mapstructure:"topic_imu_raw" yaml:"TOPIC_IMU_RAW"`

	// IMU hardware
	IMUName       string `mapstructure:"imu_name" yaml:"IMU_NAME"`
	IMUDriver     string `mapstructure:"imu_driver" yaml:"IMU_DRIVER"`
	IMUI2CBus     string `mapstructure:"imu_i2c_bus" yaml:"IMU_I2C_BUS"`
	IMUI2CAddr    uint16 `mapstructure:"imu_i2c_addr" yaml:"IMU_I2C_ADDR"`
	IMUSPIDevice  string `mapstructure:"imu_spi_device" yaml:"IMU_SPI_DEVICE"`
	IMUCSPin      string `mapstructure:"imu_cs_pin" yaml:"IMU_CS_PIN"`
	IMUSerialPort string `mapstructure:"imu_serial_port" yaml:"IMU_SERIAL_PORT"`
	IMUSerialBaud int    `mapstructure:"imu_serial_baud" yaml:"IMU_SERIAL_BAUD"`

	// IMU sensor ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte `mapstructure:"imu_accel_range" yaml:"IMU_ACCEL_RANGE"`
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte `mapstructure:"imu_gyro_range" yaml:"IMU_GYRO_RANGE"`

	// Filter
	GyroBiasSamples int     `mapstructure:"gyro_bias_samples" yaml:"GYRO_BIAS_SAMPLES"`
	FilterAlpha     float64 `mapstructure:"filter_alpha" yaml:"FILTER_ALPHA"`
	FilterGuard     string  `mapstructure:"filter_guard" yaml:"FILTER_GUARD"`

	// Timing
	IMUSampleInterval  int `mapstructure:"imu_sample_interval" yaml:"IMU_SAMPLE_INTERVAL"`   // milliseconds
	ConsoleLogInterval int `mapstructure:"console_log_interval" yaml:"CONSOLE_LOG_INTERVAL"` // milliseconds

	// Web server
	WebServerPort int `mapstructure:"web_server_port" yaml:"WEB_SERVER_PORT"`

	// Display
	DisplayI2CBus         string `mapstructure:"display_i2c_bus" yaml:"DISPLAY_I2C_BUS"`
	DisplayUpdateInterval int    `mapstructure:"display_update_interval" yaml:"DISPLAY_UPDATE_INTERVAL"` // milliseconds

	LogLevel string `mapstructure:"log_level" yaml:"LOG_LEVEL"`
}

var defaults = []struct {
	key   string
	value interface{}
}{
	{"mqtt_broker", "tcp://localhost:1883"},
	{"mqtt_client_id_producer", "imufusion-producer"},
	{"mqtt_client_id_console", "imufusion-console"},
	{"mqtt_client_id_web", "imufusion-web"},
	{"mqtt_client_id_display", "imufusion-display"},
	{"topic_pose_accel", "imufusion/pose/accel"},
	{"topic_pose_fused", "imufusion/pose/fused"},
	{"topic_imu_raw", "imufusion/imu/raw"},
	{"imu_name", "imu0"},
	{"imu_driver", DriverMPU6050},
	{"imu_i2c_bus", ""},
	{"imu_i2c_addr", 0x68},
	{"imu_spi_device", "/dev/spidev0.0"},
	{"imu_cs_pin", "GPIO8"},
	{"imu_serial_port", "/dev/ttyUSB0"},
	{"imu_serial_baud", 115200},
	{"imu_accel_range", 0},
	{"imu_gyro_range", 0},
	{"gyro_bias_samples", 200},
	{"filter_alpha", 0.98},
	{"filter_guard", "hold"},
	{"imu_sample_interval", 10},
	{"console_log_interval", 1000},
	{"web_server_port", 8080},
	{"display_i2c_bus", ""},
	{"display_update_interval", 200},
	{"log_level", "info"},
}

// Package-level singleton: InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

func newViper() *viper.Viper {
	v := viper.New()
	for _, d := range defaults {
		v.SetDefault(d.key, d.value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file and returns a Config struct.
// Files ending in .yaml or .yml are parsed as YAML, anything else as
// KEY=VALUE lines. An empty path yields the defaults plus environment
// overrides.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			v.SetConfigType("yaml")
		default:
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		log.Debugf("config: using %s", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() (*Config, error) {
	v := viper.New()
	for _, d := range defaults {
		v.SetDefault(d.key, d.value)
	}
	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return cfg, nil
}

// validate checks required fields and value ranges.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.IMUName == "" {
		return fmt.Errorf("IMU_NAME is required")
	}
	switch c.IMUDriver {
	case DriverMPU6050, DriverMPU9250:
		if c.IMUI2CAddr == 0 || c.IMUI2CAddr > 0x7F {
			return fmt.Errorf("IMU_I2C_ADDR must be a 7-bit address, got 0x%X", c.IMUI2CAddr)
		}
	case DriverMPU9250SPI:
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required for driver %s", c.IMUDriver)
		}
	case DriverSerial:
		if c.IMUSerialPort == "" {
			return fmt.Errorf("IMU_SERIAL_PORT is required for driver %s", c.IMUDriver)
		}
		if c.IMUSerialBaud <= 0 {
			return fmt.Errorf("IMU_SERIAL_BAUD must be positive, got %d", c.IMUSerialBaud)
		}
	case DriverMock:
	default:
		return fmt.Errorf("unknown IMU_DRIVER %q", c.IMUDriver)
	}
	if c.IMUAccelRange > 3 {
		return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", c.IMUAccelRange)
	}
	if c.IMUGyroRange > 3 {
		return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", c.IMUGyroRange)
	}
	if math.IsNaN(c.FilterAlpha) || c.FilterAlpha < 0 || c.FilterAlpha > 1 {
		return fmt.Errorf("FILTER_ALPHA must be within [0, 1], got %v", c.FilterAlpha)
	}
	switch strings.ToLower(c.FilterGuard) {
	case "none", "hold":
	default:
		return fmt.Errorf("FILTER_GUARD must be none or hold, got %q", c.FilterGuard)
	}
	if c.GyroBiasSamples < 0 {
		return fmt.Errorf("GYRO_BIAS_SAMPLES must not be negative, got %d", c.GyroBiasSamples)
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL is required")
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL is required")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL is required")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// SampleInterval returns IMU_SAMPLE_INTERVAL as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.IMUSampleInterval) * time.Millisecond
}

// LogInterval returns CONSOLE_LOG_INTERVAL as a duration.
func (c *Config) LogInterval() time.Duration {
	return time.Duration(c.ConsoleLogInterval) * time.Millisecond
}

// DisplayInterval returns DISPLAY_UPDATE_INTERVAL as a duration.
func (c *Config) DisplayInterval() time.Duration {
	return time.Duration(c.DisplayUpdateInterval) * time.Millisecond
}

// WriteTemplate writes cfg as YAML.
func WriteTemplate(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// DumpTemplate writes cfg as YAML to outputPath, creating the parent
// directory. An existing file is only replaced when overwrite is set.
func DumpTemplate(cfg *Config, outputPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("%s: %w (use --yes to overwrite)", outputPath, ErrExists)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", outputPath, err)
	}
	defer f.Close()

	log.Infof("config: writing template to %s", outputPath)
	return WriteTemplate(f, cfg)
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
