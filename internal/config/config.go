// Package config loads process configuration from defaults, an optional file
// and ORBITSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/logging"
	"github.com/signalsfoundry/debris-collision-sim/internal/observability"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
	"github.com/signalsfoundry/debris-collision-sim/timectrl"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// ORBITSIM_RISK_ENDPOINT overrides risk.endpoint.
const EnvPrefix = "ORBITSIM"

// PlaneConfig orients one orbit plane.
type PlaneConfig struct {
	TiltX    float64 `mapstructure:"tiltX" yaml:"tiltX"`
	TiltZ    float64 `mapstructure:"tiltZ" yaml:"tiltZ"`
	SpinRate float64 `mapstructure:"spinRate" yaml:"spinRate"`
}

// SimulationSection mirrors core.SimulationConfig.
type SimulationSection struct {
	SatelliteRadius    float64     `mapstructure:"satelliteRadius" yaml:"satelliteRadius"`
	SatelliteRadiusX   float64     `mapstructure:"satelliteRadiusX" yaml:"satelliteRadiusX"`
	DebrisStartRadius  float64     `mapstructure:"debrisStartRadius" yaml:"debrisStartRadius"`
	RingRadiusX        float64     `mapstructure:"ringRadiusX" yaml:"ringRadiusX"`
	PathResolution     int         `mapstructure:"pathResolution" yaml:"pathResolution"`
	DebrisSampleCount  int         `mapstructure:"debrisSampleCount" yaml:"debrisSampleCount"`
	DecayStep          float64     `mapstructure:"decayStep" yaml:"decayStep"`
	CollisionThreshold float64     `mapstructure:"collisionThreshold" yaml:"collisionThreshold"`
	SatellitePlane     PlaneConfig `mapstructure:"satellitePlane" yaml:"satellitePlane"`
	DebrisPlane        PlaneConfig `mapstructure:"debrisPlane" yaml:"debrisPlane"`
}

// ClockSection drives the tick loop.
type ClockSection struct {
	Tick     time.Duration `mapstructure:"tick" yaml:"tick"`
	Mode     string        `mapstructure:"mode" yaml:"mode"`
	MaxTicks uint64        `mapstructure:"maxTicks" yaml:"maxTicks"`
}

// RiskSection points at the classifier.
type RiskSection struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerSection lists listen addresses for cmd/sim-server.
type ServerSection struct {
	GRPCAddr    string `mapstructure:"grpcAddr" yaml:"grpcAddr"`
	MetricsAddr string `mapstructure:"metricsAddr" yaml:"metricsAddr"`
	FeedAddr    string `mapstructure:"feedAddr" yaml:"feedAddr"`
}

// LogSection configures the logger.
type LogSection struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TracingSection configures OpenTelemetry export.
type TracingSection struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string  `mapstructure:"serviceName" yaml:"serviceName"`
	SampleRatio float64 `mapstructure:"sampleRatio" yaml:"sampleRatio"`
}

// Config is the full process configuration.
type Config struct {
	Simulation SimulationSection `mapstructure:"simulation" yaml:"simulation"`
	Clock      ClockSection      `mapstructure:"clock" yaml:"clock"`
	Risk       RiskSection       `mapstructure:"risk" yaml:"risk"`
	Server     ServerSection     `mapstructure:"server" yaml:"server"`
	Log        LogSection        `mapstructure:"log" yaml:"log"`
	Tracing    TracingSection    `mapstructure:"tracing" yaml:"tracing"`
}

func setDefaults(v *viper.Viper) {
	sim := core.DefaultSimulationConfig()
	v.SetDefault("simulation.satelliteRadius", sim.SatelliteRadius)
	v.SetDefault("simulation.satelliteRadiusX", sim.SatelliteRadiusX)
	v.SetDefault("simulation.debrisStartRadius", sim.DebrisStartRadius)
	v.SetDefault("simulation.ringRadiusX", sim.RingRadiusX)
	v.SetDefault("simulation.pathResolution", sim.PathResolution)
	v.SetDefault("simulation.debrisSampleCount", sim.DebrisSampleCount)
	v.SetDefault("simulation.decayStep", sim.DecayStep)
	v.SetDefault("simulation.collisionThreshold", sim.CollisionThreshold)
	v.SetDefault("simulation.satellitePlane.tiltX", sim.SatellitePlane.TiltX)
	v.SetDefault("simulation.satellitePlane.tiltZ", sim.SatellitePlane.TiltZ)
	v.SetDefault("simulation.satellitePlane.spinRate", sim.SatellitePlane.SpinRate)
	v.SetDefault("simulation.debrisPlane.tiltX", sim.DebrisPlane.TiltX)
	v.SetDefault("simulation.debrisPlane.tiltZ", sim.DebrisPlane.TiltZ)
	v.SetDefault("simulation.debrisPlane.spinRate", sim.DebrisPlane.SpinRate)

	v.SetDefault("clock.tick", "16ms")
	v.SetDefault("clock.mode", timectrl.RealTime.String())
	v.SetDefault("clock.maxTicks", 0)

	v.SetDefault("risk.enabled", true)
	v.SetDefault("risk.endpoint", risk.DefaultEndpoint)
	v.SetDefault("risk.timeout", risk.DefaultTimeout.String())

	v.SetDefault("server.grpcAddr", ":50051")
	v.SetDefault("server.metricsAddr", ":9090")
	v.SetDefault("server.feedAddr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.serviceName", "orbitsim")
	v.SetDefault("tracing.sampleRatio", 1.0)
}

// Load builds a Config. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-section constraints that viper cannot express.
func (c Config) Validate() error {
	if err := c.SimulationConfig().Validate(); err != nil {
		return err
	}
	if _, err := timectrl.ParseMode(c.Clock.Mode); err != nil {
		return fmt.Errorf("clock.mode: %w", err)
	}
	if c.Clock.Tick <= 0 {
		return fmt.Errorf("clock.tick must be positive, got %s", c.Clock.Tick)
	}
	if c.Risk.Enabled && c.Risk.Endpoint == "" {
		return errors.New("risk.endpoint is required when risk.enabled is true")
	}
	return nil
}

// SimulationConfig converts the simulation section.
func (c Config) SimulationConfig() core.SimulationConfig {
	s := c.Simulation
	return core.SimulationConfig{
		SatelliteRadius:    s.SatelliteRadius,
		SatelliteRadiusX:   s.SatelliteRadiusX,
		DebrisStartRadius:  s.DebrisStartRadius,
		RingRadiusX:        s.RingRadiusX,
		PathResolution:     s.PathResolution,
		DebrisSampleCount:  s.DebrisSampleCount,
		DecayStep:          s.DecayStep,
		CollisionThreshold: s.CollisionThreshold,
		SatellitePlane:     core.OrbitPlane{TiltX: s.SatellitePlane.TiltX, TiltZ: s.SatellitePlane.TiltZ, SpinRate: s.SatellitePlane.SpinRate},
		DebrisPlane:        core.OrbitPlane{TiltX: s.DebrisPlane.TiltX, TiltZ: s.DebrisPlane.TiltZ, SpinRate: s.DebrisPlane.SpinRate},
	}
}

// ClockMode parses clock.mode; Load has already validated it.
func (c Config) ClockMode() timectrl.Mode {
	m, _ := timectrl.ParseMode(c.Clock.Mode)
	return m
}

// LoggingConfig converts the log section.
func (c Config) LoggingConfig(out io.Writer) logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, Output: out}
}

// TracingConfig converts the tracing section.
func (c Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// Dump writes the effective configuration as YAML.
func (c Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
