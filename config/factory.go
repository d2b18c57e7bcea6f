// Package config implements the Configuration Factory seam: turning a
// Command's argv into the concrete Configuration a Worker loads before
// it invokes the command. Uses a flat, explicitly-named struct per
// concern, built by a Create method, rather than a full
// dependency-injection graph, which is overkill for a single seam with
// no DI graph of its own.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/twitter/devfarm/device"
)

// DefaultShutdownTimeoutMs is the ShutdownTimeoutMs a Configuration
// carries when its argv doesn't set --shutdown_timeout_ms.
const DefaultShutdownTimeoutMs = 30000

// Configuration is everything a Worker needs beyond the raw argv to
// run one dispatch of a Command: loop-mode bookkeeping, timeouts, and
// the battery cutoff a watchdog should enforce.
type Configuration struct {
	Argv                []string
	LoopMode            bool
	MinLoopTimeMs       int64
	InvocationTimeoutMs int64
	ShutdownTimeoutMs   int64
	CutoffBattery       int
	DeviceRequirements  device.Requirements
}

// Factory is the seam a Worker calls through to build a Configuration;
// swappable so tests can inject one that skips flag parsing entirely.
type Factory interface {
	CreateConfigurationFromArgs(argv []string) (*Configuration, error)
}

// DefaultFactory recognizes a small set of --key=value / --flag
// tokens interleaved with the command's own argv, using pflag-style
// long options without pulling in a full flag.FlagSet, since these
// tokens are embedded inside a larger argv rather than parsed from
// os.Args. A --token with an unrecognized key is rejected when it comes
// before the command's first positional token; after that it is passed
// through as part of the command's own argv.
type DefaultFactory struct{}

func NewDefaultFactory() *DefaultFactory {
	return &DefaultFactory{}
}

func (f *DefaultFactory) CreateConfigurationFromArgs(argv []string) (*Configuration, error) {
	cfg := &Configuration{
		ShutdownTimeoutMs: DefaultShutdownTimeoutMs,
	}

	var passthrough []string
	var allowlist []device.Serial
	seenPositional := false

	for _, tok := range argv {
		if !strings.HasPrefix(tok, "--") {
			passthrough = append(passthrough, tok)
			seenPositional = true
			continue
		}
		key, value, _ := strings.Cut(strings.TrimPrefix(tok, "--"), "=")
		switch key {
		case "loop_mode":
			cfg.LoopMode = true
		case "min_loop_time_ms":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "min_loop_time_ms: invalid value %q", value)
			}
			cfg.MinLoopTimeMs = v
		case "invocation_timeout_ms":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invocation_timeout_ms: invalid value %q", value)
			}
			cfg.InvocationTimeoutMs = v
		case "shutdown_timeout_ms":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "shutdown_timeout_ms: invalid value %q", value)
			}
			cfg.ShutdownTimeoutMs = v
		case "cutoff_battery":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "cutoff_battery: invalid value %q", value)
			}
			cfg.CutoffBattery = v
		case "serial":
			allowlist = append(allowlist, device.Serial(value))
		case "product-type":
			cfg.DeviceRequirements.ProductType = value
		case "emulator":
			emu := true
			cfg.DeviceRequirements.EmulatorOnly = &emu
		case "min-battery":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "min-battery: invalid value %q", value)
			}
			cfg.DeviceRequirements.MinBattery = &v
		default:
			if seenPositional {
				passthrough = append(passthrough, tok)
				continue
			}
			return nil, errors.Errorf("unrecognized configuration flag --%s", key)
		}
	}

	cfg.DeviceRequirements.SerialAllowlist = allowlist
	cfg.Argv = passthrough
	return cfg, nil
}

// InvocationTimeout returns the per-invocation duration, or 0 (no
// timeout) if unset.
func (c *Configuration) InvocationTimeout() time.Duration {
	return time.Duration(c.InvocationTimeoutMs) * time.Millisecond
}

func (c *Configuration) MinLoopTime() time.Duration {
	return time.Duration(c.MinLoopTimeMs) * time.Millisecond
}

func (c *Configuration) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}
