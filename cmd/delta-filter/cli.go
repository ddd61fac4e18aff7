package main

import (
	"io"
	"os"

	"github.com/knadh/koanf"
	"github.com/spf13/cobra"

	"klipper-delta-filter/pkg/config"
	"klipper-delta-filter/pkg/convert"
	"klipper-delta-filter/pkg/errors"
	"klipper-delta-filter/pkg/kinematics"
	"klipper-delta-filter/pkg/log"
	"klipper-delta-filter/pkg/metrics"
)

// newRootCmd builds the delta-filter command reading G-code from stdin and
// writing the converted stream to stdout. Logs go to stderr unless --logfile
// is given.
func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delta-filter",
		Short: "Convert cartesian G1 moves into delta tower positions",
		Long: `delta-filter reads G-code on stdin and writes it to stdout, replacing the
X, Y and Z of every G1 move with the carriage positions of towers 1, 2 and 3.

Axes missing from a move are carried forward from earlier moves. E and F are
copied through and never carried. All other lines pass through byte for byte.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, stdin, stdout, stderr)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln("Error:", err)
		c.PrintErrln(c.UsageString())
		return err
	})

	def := kinematics.DefaultParams()
	opts := convert.DefaultOptions()
	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Klipper-style config file with [delta] and [filter] sections")
	flags.String("verb", opts.Verb, "Motion command to convert")
	flags.Int("precision", opts.Precision, "Fractional digits of converted values")
	flags.Bool("annotate", opts.Annotate, "Append ' ; -- delta' to converted lines")
	flags.String("on-malformed", string(opts.OnMalformed), "Malformed motion lines: abort or skip")
	flags.Float64("diagonal-rod", def.DiagonalRod, "Diagonal rod length")
	flags.Float64("smooth-rod-offset", def.SmoothRodOffset, "Distance from the center to the smooth rods")
	flags.Float64("effector-offset", def.EffectorOffset, "Rod joint offset on the effector")
	flags.Float64("carriage-offset", def.CarriageOffset, "Rod joint offset on the carriages")
	flags.Bool("verify", false, "Invert every converted position and check it against the target")
	flags.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (default INFO or $DELTA_LOG_LEVEL)")
	flags.String("log-format", "", "Log format: text or json (default text or $DELTA_LOG_FORMAT)")
	flags.String("logfile", "", "Write logs to a size-rotated file instead of stderr")
	flags.String("metrics-file", "", "Write metrics in text exposition format when the run ends")
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

func run(cmd *cobra.Command, stdin io.Reader, stdout, stderr io.Writer) error {
	k, cfg, err := loadSettings(cmd.Flags())
	if err != nil {
		fallback := newLogger(stderr)
		fallback.WithError(err).Error("invalid settings")
		return err
	}

	logger, closeLog, err := setupLogger(k, stderr)
	if err != nil {
		newLogger(stderr).WithError(err).Error("invalid log settings")
		return err
	}
	defer closeLog()

	if err := convertStream(k, cfg, logger, stdin, stdout); err != nil {
		logger.WithError(err).Error("delta-filter failed")
		return err
	}
	return nil
}

func convertStream(k *koanf.Koanf, cfg *config.Config, logger *log.Logger, stdin io.Reader, stdout io.Writer) error {
	if cfg != nil {
		for _, opt := range cfg.GetUnusedOptions() {
			logger.WithField("option", opt).Warn("unused config option")
		}
	}

	p, err := params(k)
	if err != nil {
		return err
	}
	geom, err := kinematics.NewGeometry(p)
	if err != nil {
		return err
	}
	opts, err := options(k)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"radius":   geom.Radius(),
		"z_offset": geom.ZOffset(),
		"verb":     opts.Verb,
	}).Debug("delta geometry ready")

	m := metrics.NewFilterMetrics()
	conv, err := convert.NewConverter(geom, opts, logger.WithPrefix("convert"), m)
	if err != nil {
		return err
	}

	_, runErr := conv.Run(stdin, stdout)
	if path := k.String(keyMetricsFile); path != "" {
		if err := m.Registry().WriteFile(path); err != nil {
			logger.WithError(err).Errorf("writing metrics to %s failed", path)
			if runErr == nil {
				return errors.IOError(err, "write metrics "+path)
			}
		}
	}
	return runErr
}

// newLogger returns the root logger writing to w.
func newLogger(w io.Writer) *log.Logger {
	logger := log.New("delta-filter")
	logger.SetWriter(w)
	if w != io.Writer(os.Stderr) {
		logger.SetColorize(false)
	}
	log.ConfigureFromEnv(logger)
	return logger
}

// setupLogger builds the root logger from environment and settings and
// installs it as the default. The returned func closes the log file.
func setupLogger(k *koanf.Koanf, stderr io.Writer) (*log.Logger, func(), error) {
	logger := newLogger(stderr)
	closeLog := func() {}

	if path := k.String(keyLogFile); path != "" {
		fileLogger, writer, err := log.NewFileLogger("delta-filter", log.RotationConfig{Filename: path})
		if err != nil {
			return nil, nil, errors.IOError(err, "open log file "+path)
		}
		log.ConfigureFromEnv(fileLogger)
		fileLogger.SetColorize(false)
		logger = fileLogger
		closeLog = func() { writer.Close() }
	}

	if s := k.String(keyLogLevel); s != "" {
		level, ok := log.LookupLevel(s)
		if !ok {
			closeLog()
			return nil, nil, errors.ConfigValidationError("log-level", "unknown level "+s)
		}
		logger.SetLevel(level)
	}
	if s := k.String(keyLogFormat); s != "" {
		format, ok := log.LookupFormat(s)
		if !ok {
			closeLog()
			return nil, nil, errors.ConfigValidationError("log-format", "unknown format "+s)
		}
		logger.SetFormat(format)
	}

	log.SetDefaultLogger(logger)
	return logger, closeLog, nil
}
