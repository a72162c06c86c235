package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/imu_fusion/internal/app"
	"github.com/relabs-tech/imu_fusion/internal/config"
)

// DefaultTemplatePath is where init writes the YAML template.
const DefaultTemplatePath = "./imufusion_config.yaml"

// configPath returns --config, or the first default file that exists.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	for _, path := range []string{config.DefaultConfigPath, DefaultTemplatePath} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.InitGlobal(configPath(cmd)); err != nil {
		return nil, err
	}
	cfg := config.Get()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	return cfg, nil
}

// withConfig loads the configuration and runs fn with a context cancelled
// on SIGINT or SIGTERM.
func withConfig(fn func(ctx context.Context, cfg *config.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fn(ctx, cfg)
	}
}

func newProduceCmd() *cobra.Command {
	return &cobra.Command{
		Use:        "produce",
		SuggestFor: []string{"prod", "run", "serve"},
		Short:      "produce samples the IMU and publishes attitude to MQTT",
		Long: `produce samples the configured IMU every IMU_SAMPLE_INTERVAL, runs the
complementary filter and publishes the raw sample, the accelerometer-only
pose and the fused pose as retained JSON messages.
The gyroscope bias is estimated from GYRO_BIAS_SAMPLES samples at startup,
keep the sensor still until the publish loop starts.`,
		Example: `  imufusion produce --config=/etc/imufusion/imufusion_config.txt`,
		RunE:    withConfig(app.RunIMUProducer),
	}
}

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "console prints poses and raw samples received over MQTT",
		Long: `console subscribes to the pose and raw topics and prints every message.
With --tui the latest values are shown in a terminal table instead, press q to quit.`,
		Example: `  imufusion console
  imufusion console --tui`,
	}
	cmd.Flags().Bool("tui", false, "show a live table instead of a message log")
	cmd.RunE = withConfig(func(ctx context.Context, cfg *config.Config) error {
		if tui, _ := cmd.Flags().GetBool("tui"); tui {
			return app.RunConsoleTUI(ctx, cfg)
		}
		return app.RunConsoleMQTT(ctx, cfg)
	})
	return cmd
}

func newWebCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "web serves the fused pose over HTTP and websocket",
		Long: `web subscribes to the fused pose and serves
  GET /api/orientation  latest pose as JSON (503 until the first pose)
  /ws                   websocket stream, latest pose on connect then every update
and the static files under ./web on WEB_SERVER_PORT.`,
		RunE: withConfig(app.RunWeb),
	}
}

func newDisplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display",
		Short: "display renders the fused pose on an SSD1306 OLED",
		RunE:  withConfig(app.RunDisplay),
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:        "inspect",
		SuggestFor: []string{"ins", "insp", "check"},
		Short:      "inspect the configured I2C IMU",
		Long: `inspect opens the IMU on IMU_I2C_BUS at IMU_I2C_ADDR (falling back to the
other AD0 address), checks WHO_AM_I and prints the power management state,
the full-scale configuration, a decoded dump of the configuration registers,
each output block read on its own and one burst sample.`,
		Example: `  imufusion inspect
  IMUFUSION_IMU_I2C_ADDR=0x69 imufusion inspect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.RunInspect(cfg)
		},
	}
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "simulate runs synthetic motion through the filter",
		Long: `simulate feeds a synthetic swaying and turning motion through the filter
configured by FILTER_ALPHA and FILTER_GUARD on a virtual clock ticking every
IMU_SAMPLE_INTERVAL, and prints the accelerometer-only and fused attitude
every CONSOLE_LOG_INTERVAL. No hardware or broker is needed.`,
		Example: `  imufusion simulate --duration 30s
  IMUFUSION_FILTER_ALPHA=0.9 imufusion simulate`,
	}
	cmd.Flags().Duration("duration", 10*time.Second, "simulated time span")
	cmd.RunE = withConfig(func(ctx context.Context, cfg *config.Config) error {
		d, err := cmd.Flags().GetDuration("duration")
		if err != nil {
			return err
		}
		return app.RunSimulation(ctx, cfg, d)
	})
	return cmd
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:        "init",
		SuggestFor: []string{"ini", "in"},
		Short:      "init create a configuration template",
		Long: `init create a configuration template from the defaults and any
IMUFUSION_* environment overrides.
If --defaults flag is present, environment overrides are ignored.
If --print flag is present, the configuration will be printed to stdout.
Otherwise init writes it to --output / -o (default ./imufusion_config.yaml).
If --yes / -y flag is present, an existing file is overwritten without confirmation.`,
		Example: `  imufusion init --print
  imufusion init --output /etc/imufusion/config.yaml
  imufusion init --defaults --print
  imufusion init -o /etc/imufusion/config.yaml -y`,
		RunE: func(cmd *cobra.Command, args []string) error {
			load := func() (*config.Config, error) { return config.Load("") }
			if defaults, _ := cmd.Flags().GetBool("defaults"); defaults {
				load = config.Default
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if toStdout, _ := cmd.Flags().GetBool("print"); toStdout {
				return config.WriteTemplate(cmd.OutOrStdout(), cfg)
			}
			output, _ := cmd.Flags().GetString("output")
			yes, _ := cmd.Flags().GetBool("yes")
			return config.DumpTemplate(cfg, output, yes)
		},
	}
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().Bool("defaults", false, "ignore IMUFUSION_* environment overrides")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", DefaultTemplatePath, "output path")
	return cmd
}

// NewRootCmd assembles the imufusion command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "imufusion",
		Short: "IMU attitude estimation with a complementary filter",
		Long: `imufusion estimates roll, pitch and yaw from an MPU6050/MPU9250 class IMU.
Configuration is read from the path given by --config, else from
./imufusion_config.txt or ./imufusion_config.yaml when present, else the
built-in defaults are used. IMUFUSION_<KEY> environment variables override
any value, e.g. IMUFUSION_FILTER_ALPHA=0.95.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "configuration file (KEY=VALUE .txt or .yaml)")
	root.PersistentFlags().Bool("debug", false, "toggle debug logging")

	root.AddCommand(
		newProduceCmd(),
		newConsoleCmd(),
		newWebCmd(),
		newDisplayCmd(),
		newInspectCmd(),
		newSimulateCmd(),
		newInitCmd(),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
