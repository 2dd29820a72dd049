// Package config loads the application configuration from defaults, an
// optional YAML file and RIPPLE_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scene"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RIPPLE_SIMULATION_DAMPING.
const EnvPrefix = "RIPPLE"

var envReplacer = strings.NewReplacer(".", "_")

// BindEnv makes v read RIPPLE_ environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
}

// Config is the root configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	Pointer    PointerConfig    `mapstructure:"pointer" yaml:"pointer"`
	Camera     CameraConfig     `mapstructure:"camera" yaml:"camera"`
	Surface    SurfaceConfig    `mapstructure:"surface" yaml:"surface"`
	Render     RenderConfig     `mapstructure:"render" yaml:"render"`
	Audio      AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Profile    ProfileConfig    `mapstructure:"profile" yaml:"profile"`
}

// LoggerConfig holds the zap/lumberjack settings.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console colour per level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SimulationConfig describes the field and the integrator.
type SimulationConfig struct {
	Width         int     `mapstructure:"width" yaml:"width"`
	Height        int     `mapstructure:"height" yaml:"height"`
	C2Dt2         float32 `mapstructure:"c2dt2" yaml:"c2dt2"`
	Damping       float32 `mapstructure:"damping" yaml:"damping"`
	MaxSources    int     `mapstructure:"max_sources" yaml:"max_sources"`
	DrainPolicy   string  `mapstructure:"drain_policy" yaml:"drain_policy"`
	Backlog       int     `mapstructure:"backlog" yaml:"backlog"`
	Backend       string  `mapstructure:"backend" yaml:"backend"`
	Workers       int     `mapstructure:"workers" yaml:"workers"`
	StepsPerFrame int     `mapstructure:"steps_per_frame" yaml:"steps_per_frame"`
	AllowUnstable bool    `mapstructure:"allow_unstable" yaml:"allow_unstable"`
}

// Params converts the section to integrator parameters.
func (s SimulationConfig) Params() ripple.Params {
	return ripple.Params{
		Width:      s.Width,
		Height:     s.Height,
		C2Dt2:      s.C2Dt2,
		Damping:    s.Damping,
		MaxSources: s.MaxSources,
	}
}

// PointerConfig tunes pointer injection.
type PointerConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	Amplitude float32       `mapstructure:"amplitude" yaml:"amplitude"`
	// Spread is the source sigma as a fraction of the domain.
	Spread float64 `mapstructure:"spread" yaml:"spread"`
}

// CameraConfig places the perspective camera.
type CameraConfig struct {
	Position []float64 `mapstructure:"position" yaml:"position"`
	Target   []float64 `mapstructure:"target" yaml:"target"`
	FovY     float64   `mapstructure:"fov_y" yaml:"fov_y"`
	Near     float64   `mapstructure:"near" yaml:"near"`
	Far      float64   `mapstructure:"far" yaml:"far"`
}

// Camera builds the scene camera. Missing components fall back to the
// defaults.
func (c CameraConfig) Camera() scene.Camera {
	cam := scene.DefaultCamera()
	cam.Position = vec3(c.Position, cam.Position)
	cam.Target = vec3(c.Target, cam.Target)
	cam.FovY = c.FovY
	cam.Near = c.Near
	cam.Far = c.Far
	return cam
}

// SurfaceConfig places the rippled plane.
type SurfaceConfig struct {
	Width     float64   `mapstructure:"width" yaml:"width"`
	Height    float64   `mapstructure:"height" yaml:"height"`
	Position  []float64 `mapstructure:"position" yaml:"position"`
	RotationX float64   `mapstructure:"rotation_x" yaml:"rotation_x"`
}

// Surface builds the scene surface.
func (s SurfaceConfig) Surface() scene.Surface {
	surf := scene.DefaultSurface()
	surf.Width = s.Width
	surf.Height = s.Height
	surf.Position = vec3(s.Position, surf.Position)
	surf.RotationX = s.RotationX
	return surf
}

func vec3(v []float64, fallback mgl64.Vec3) mgl64.Vec3 {
	if len(v) != 3 {
		return fallback
	}
	return mgl64.Vec3{v[0], v[1], v[2]}
}

// RenderConfig controls the front-ends.
type RenderConfig struct {
	Width   int     `mapstructure:"width" yaml:"width"`
	Height  int     `mapstructure:"height" yaml:"height"`
	Scale   int     `mapstructure:"scale" yaml:"scale"`
	TPS     int     `mapstructure:"tps" yaml:"tps"`
	Opacity float64 `mapstructure:"opacity" yaml:"opacity"`
	// Raw draws the height field directly instead of the shaded surface.
	Raw   bool    `mapstructure:"raw" yaml:"raw"`
	Gain  float32 `mapstructure:"gain" yaml:"gain"`
	Debug bool    `mapstructure:"debug" yaml:"debug"`
}

// AudioConfig controls the probe sonification.
type AudioConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	ProbeU  float64       `mapstructure:"probe_u" yaml:"probe_u"`
	ProbeV  float64       `mapstructure:"probe_v" yaml:"probe_v"`
	Gain    float32       `mapstructure:"gain" yaml:"gain"`
	Buffer  time.Duration `mapstructure:"buffer" yaml:"buffer"`
}

// ServerConfig controls the websocket server.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	FrameRate    int           `mapstructure:"frame_rate" yaml:"frame_rate"`
	Downsample   int           `mapstructure:"downsample" yaml:"downsample"`
	SendBuffer   int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ProfileConfig controls the bench command.
type ProfileConfig struct {
	Frames     int    `mapstructure:"frames" yaml:"frames"`
	CPUProfile string `mapstructure:"cpu_profile" yaml:"cpu_profile"`
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ripple-field")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Simulation --
	v.SetDefault("simulation.width", ripple.DefaultSize)
	v.SetDefault("simulation.height", ripple.DefaultSize)
	v.SetDefault("simulation.c2dt2", ripple.DefaultC2Dt2)
	v.SetDefault("simulation.damping", ripple.DefaultDamping)
	v.SetDefault("simulation.max_sources", ripple.DefaultMaxSources)
	v.SetDefault("simulation.drain_policy", ripple.DropExcess.String())
	v.SetDefault("simulation.backlog", ripple.DefaultMaxSources)
	v.SetDefault("simulation.backend", ripple.BackendCPU)
	v.SetDefault("simulation.workers", 1)
	v.SetDefault("simulation.steps_per_frame", 1)
	v.SetDefault("simulation.allow_unstable", false)

	// -- Pointer --
	v.SetDefault("pointer.interval", "35ms")
	v.SetDefault("pointer.amplitude", 0.012)
	v.SetDefault("pointer.spread", 0.02)

	// -- Camera / Surface --
	v.SetDefault("camera.position", []float64{0, 2, 15})
	v.SetDefault("camera.target", []float64{0, 2, 0})
	v.SetDefault("camera.fov_y", 70.0)
	v.SetDefault("camera.near", 0.1)
	v.SetDefault("camera.far", 100.0)
	v.SetDefault("surface.width", 100.0)
	v.SetDefault("surface.height", 24.0)
	v.SetDefault("surface.position", []float64{0, -2, 0})
	v.SetDefault("surface.rotation_x", 1.7)

	// -- Render --
	v.SetDefault("render.width", 640)
	v.SetDefault("render.height", 360)
	v.SetDefault("render.scale", 2)
	v.SetDefault("render.tps", 60)
	v.SetDefault("render.opacity", 0.25)
	v.SetDefault("render.raw", false)
	v.SetDefault("render.gain", 40.0)
	v.SetDefault("render.debug", false)

	// -- Audio --
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.probe_u", 0.5)
	v.SetDefault("audio.probe_v", 0.5)
	v.SetDefault("audio.gain", 20.0)
	v.SetDefault("audio.buffer", "80ms")

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.frame_rate", 30)
	v.SetDefault("server.downsample", 4)
	v.SetDefault("server.send_buffer", 4)
	v.SetDefault("server.write_timeout", "2s")

	// -- Profile --
	v.SetDefault("profile.frames", 600)
	v.SetDefault("profile.cpu_profile", "")
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewDefaultConfig returns the defaults without reading files or the
// environment.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration does not decode: %v", err))
	}
	return &cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation configuration invalid: %w", err)
	}
	if c.Pointer.Interval < 0 {
		return fmt.Errorf("pointer.interval must not be negative")
	}
	if c.Pointer.Spread <= 0 {
		return fmt.Errorf("pointer.spread must be positive")
	}
	if len(c.Camera.Position) != 3 || len(c.Camera.Target) != 3 {
		return fmt.Errorf("camera.position and camera.target need three components")
	}
	if c.Camera.FovY <= 0 || c.Camera.FovY >= 180 {
		return fmt.Errorf("camera.fov_y must be between 0 and 180 degrees")
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return fmt.Errorf("camera.near must be positive and below camera.far")
	}
	if len(c.Surface.Position) != 3 {
		return fmt.Errorf("surface.position needs three components")
	}
	if c.Surface.Width <= 0 || c.Surface.Height <= 0 {
		return fmt.Errorf("surface.width and surface.height must be positive")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.Scale <= 0 {
		return fmt.Errorf("render.width, render.height and render.scale must be positive")
	}
	if c.Render.TPS <= 0 {
		return fmt.Errorf("render.tps must be positive")
	}
	if c.Audio.ProbeU < 0 || c.Audio.ProbeU > 1 || c.Audio.ProbeV < 0 || c.Audio.ProbeV > 1 {
		return fmt.Errorf("audio.probe_u and audio.probe_v must be in [0,1]")
	}
	if c.Server.FrameRate <= 0 {
		return fmt.Errorf("server.frame_rate must be positive")
	}
	if c.Server.Downsample <= 0 {
		return fmt.Errorf("server.downsample must be positive")
	}
	if c.Profile.Frames <= 0 {
		return fmt.Errorf("profile.frames must be positive")
	}
	return nil
}

// Validate checks the simulation section, including the stability bound
// unless AllowUnstable is set.
func (s *SimulationConfig) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	if s.MaxSources < 1 || s.MaxSources > ripple.MaxSources {
		return fmt.Errorf("max_sources must be between 1 and %d", ripple.MaxSources)
	}
	if s.Damping < 0 || s.Damping >= 1 {
		return fmt.Errorf("damping must be in [0,1)")
	}
	switch s.DrainPolicy {
	case "drop", "carry":
	default:
		return fmt.Errorf("drain_policy must be drop or carry, got %q", s.DrainPolicy)
	}
	switch s.Backend {
	case ripple.BackendCPU, ripple.BackendOpenCL:
	default:
		return fmt.Errorf("backend must be %s or %s, got %q", ripple.BackendCPU, ripple.BackendOpenCL, s.Backend)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if s.StepsPerFrame < 1 {
		return fmt.Errorf("steps_per_frame must be at least 1")
	}
	if !s.AllowUnstable {
		if err := s.Params().Check(); err != nil {
			return err
		}
	}
	return nil
}
