package main

import (
	"fmt"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"

	"klipper-delta-filter/pkg/config"
	"klipper-delta-filter/pkg/convert"
	"klipper-delta-filter/pkg/errors"
	"klipper-delta-filter/pkg/kinematics"
)

// Keys for settings that only come from the command line
const (
	keyConfigFile  = "run.config"
	keyVerify      = "run.verify"
	keyMetricsFile = "run.metrics_file"
	keyLogLevel    = "log.level"
	keyLogFormat   = "log.format"
	keyLogFile     = "log.file"
)

// flagKeys maps command line flags to setting keys.
var flagKeys = map[string]string{
	"config":            keyConfigFile,
	"verb":              config.KeyMotionVerb,
	"precision":         config.KeyPrecision,
	"annotate":          config.KeyAnnotate,
	"on-malformed":      config.KeyOnMalformed,
	"diagonal-rod":      config.KeyDiagonalRod,
	"smooth-rod-offset": config.KeySmoothRodOffset,
	"effector-offset":   config.KeyEffectorOffset,
	"carriage-offset":   config.KeyCarriageOffset,
	"verify":            keyVerify,
	"log-level":         keyLogLevel,
	"log-format":        keyLogFormat,
	"logfile":           keyLogFile,
	"metrics-file":      keyMetricsFile,
}

// defaults is the lowest settings layer.
func defaults() map[string]interface{} {
	p := kinematics.DefaultParams()
	o := convert.DefaultOptions()
	return map[string]interface{}{
		config.KeyDiagonalRod:     p.DiagonalRod,
		config.KeySmoothRodOffset: p.SmoothRodOffset,
		config.KeyEffectorOffset:  p.EffectorOffset,
		config.KeyCarriageOffset:  p.CarriageOffset,
		config.KeyTowerAngles:     p.TowerAngles[:],
		config.KeyMotionVerb:      o.Verb,
		config.KeyPrecision:       o.Precision,
		config.KeyAnnotate:        o.Annotate,
		config.KeyOnMalformed:     string(o.OnMalformed),
		keyConfigFile:             "",
		keyVerify:                 false,
		keyMetricsFile:            "",
		keyLogLevel:               "",
		keyLogFormat:              "",
		keyLogFile:                "",
	}
}

// loadSettings merges defaults, the config file named by --config and the
// flags set on the command line, in that order. The parsed config file is
// returned for unused-option reporting; it is nil without --config.
func loadSettings(flags *pflag.FlagSet) (*koanf.Koanf, *config.Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrConfigOption, "load defaults")
	}

	var cfg *config.Config
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, nil, err
		}
		settings, err := config.Settings(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := k.Load(confmap.Provider(settings, "."), nil); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrConfigOption, "load "+path)
		}
	}

	provider := posflag.ProviderWithValue(flags, ".", k, func(name, _ string) (string, interface{}) {
		key, ok := flagKeys[name]
		if !ok || !flags.Changed(name) {
			return "", nil
		}
		return key, flagValue(flags, name)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrConfigOption, "load flags")
	}
	return k, cfg, nil
}

// flagValue returns the typed value of a flag.
func flagValue(flags *pflag.FlagSet, name string) interface{} {
	switch flags.Lookup(name).Value.Type() {
	case "float64":
		v, _ := flags.GetFloat64(name)
		return v
	case "int":
		v, _ := flags.GetInt(name)
		return v
	case "bool":
		v, _ := flags.GetBool(name)
		return v
	}
	v, _ := flags.GetString(name)
	return v
}

// params builds the machine geometry parameters from merged settings.
func params(k *koanf.Koanf) (kinematics.Params, error) {
	angles := k.Float64s(config.KeyTowerAngles)
	if len(angles) != 3 {
		return kinematics.Params{}, errors.ConfigValidationError(config.KeyTowerAngles,
			fmt.Sprintf("need 3 angles, got %d", len(angles)))
	}
	p := kinematics.Params{
		DiagonalRod:     k.Float64(config.KeyDiagonalRod),
		SmoothRodOffset: k.Float64(config.KeySmoothRodOffset),
		EffectorOffset:  k.Float64(config.KeyEffectorOffset),
		CarriageOffset:  k.Float64(config.KeyCarriageOffset),
	}
	copy(p.TowerAngles[:], angles)
	return p, nil
}

// options builds the converter options from merged settings.
func options(k *koanf.Koanf) (convert.Options, error) {
	precision := k.Int(config.KeyPrecision)
	if precision < 0 || precision > config.MaxPrecision {
		return convert.Options{}, errors.ConfigValidationError(config.KeyPrecision,
			fmt.Sprintf("%d is outside 0..%d", precision, config.MaxPrecision))
	}
	policy, err := convert.ParsePolicy(k.String(config.KeyOnMalformed))
	if err != nil {
		return convert.Options{}, err
	}
	return convert.Options{
		Verb:        k.String(config.KeyMotionVerb),
		Precision:   precision,
		Annotate:    k.Bool(config.KeyAnnotate),
		OnMalformed: policy,
		Verify:      k.Bool(keyVerify),
	}, nil
}
