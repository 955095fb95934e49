package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"ckptbench/pkg/logger"

	"gopkg.in/yaml.v3"
)

// Config is the full benchmark configuration. It is loaded from a YAML
// file and then overridden by command-line flags, so every field has a
// usable default. The JSON tags keep the run manifest's embedded copy
// of the config in the same key style as the file.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Run        RunConfig        `yaml:"run" json:"run"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
	Iostat     IostatConfig     `yaml:"iostat" json:"iostat"`
	Group      GroupConfig      `yaml:"group" json:"group"`
	History    HistoryConfig    `yaml:"history" json:"history"`
	Logger     logger.Config    `yaml:"logger" json:"logger"`
}

// ServerConfig describes the checkpoint endpoint: where the control
// rank listens, and where the driving client connects.
type ServerConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Mode   string `yaml:"mode" json:"mode"`       // debug, release
	APIKey string `yaml:"api_key" json:"api_key"` // API key for client authentication (optional, if empty, auth is disabled)
}

// RunConfig controls the driving client loop.
type RunConfig struct {
	NumSteps             int     `yaml:"num_steps" json:"num_steps"`
	NumPasses            int     `yaml:"num_passes" json:"num_passes"`
	InterCheckpointSleep float64 `yaml:"inter_checkpoint_sleep" json:"inter_checkpoint_sleep"` // seconds between checkpoints
	ResultsDir           string  `yaml:"results_dir" json:"results_dir"`
	Verbose              bool    `yaml:"verbose" json:"verbose"`
}

// CheckpointConfig selects the workload written at each checkpoint.
type CheckpointConfig struct {
	Model string `yaml:"model" json:"model"` // workload profile name, e.g. llama3-70b
	Dir   string `yaml:"dir" json:"dir"`     // where checkpoint state files are written
}

// IostatConfig controls device-utilization sampling on the client host.
type IostatConfig struct {
	Enabled  bool `yaml:"enabled" json:"enabled"`
	Interval int  `yaml:"interval" json:"interval"` // sampling interval (seconds)
}

// GroupConfig describes this process's place in the rank group.
type GroupConfig struct {
	Kind           string `yaml:"kind" json:"kind"` // single, ws
	Rank           int    `yaml:"rank" json:"rank"`
	Size           int    `yaml:"size" json:"size"`
	RendezvousHost string `yaml:"rendezvous_host" json:"rendezvous_host"` // control rank address for kind=ws
	RendezvousPort int    `yaml:"rendezvous_port" json:"rendezvous_port"`
}

// HistoryConfig controls the optional MySQL result sink.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
}

// Default returns the configuration used when no file and no flags are
// given: a single-rank server on localhost and a five-step single pass.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: "release",
		},
		Run: RunConfig{
			NumSteps:   5,
			NumPasses:  1,
			ResultsDir: "results",
		},
		Checkpoint: CheckpointConfig{
			Model: "llama3-70b",
			Dir:   "checkpoints",
		},
		Iostat: IostatConfig{
			Interval: 1,
		},
		Group: GroupConfig{
			Kind: "single",
			Rank: 0,
			Size: 1,
		},
		History: HistoryConfig{
			Port: 3306,
		},
		Logger: logger.Config{
			Level:  "info",
			Output: "console",
		},
	}
}

// Load reads the configuration file at path on top of the defaults.
// An empty path falls back to the CKPTBENCH_CONFIG environment
// variable; if that is empty too, the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CKPTBENCH_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for contradictions before the run
// starts. It is called after flag overrides have been applied.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Run.NumSteps < 1 {
		return fmt.Errorf("num_steps must be at least 1, got %d", c.Run.NumSteps)
	}
	if c.Run.NumPasses < 1 {
		return fmt.Errorf("num_passes must be at least 1, got %d", c.Run.NumPasses)
	}
	if c.Run.InterCheckpointSleep < 0 {
		return fmt.Errorf("inter_checkpoint_sleep must not be negative, got %v", c.Run.InterCheckpointSleep)
	}
	if c.Checkpoint.Model == "" {
		return fmt.Errorf("checkpoint model must not be empty")
	}
	if c.Iostat.Enabled {
		if c.Iostat.Interval < 1 {
			return fmt.Errorf("iostat interval must be at least 1 second, got %d", c.Iostat.Interval)
		}
		// iostat samples the devices of the machine the client runs on,
		// which only reflects checkpoint traffic when the server writes
		// to the same machine.
		if !IsLocalHost(c.Server.Host) {
			return fmt.Errorf("iostat collection requires a local server endpoint, got %q", c.Server.Host)
		}
	}
	if err := c.Group.validate(); err != nil {
		return err
	}
	if c.History.Enabled {
		if c.History.Host == "" || c.History.Database == "" {
			return fmt.Errorf("history sink requires host and database")
		}
	}
	return nil
}

func (g *GroupConfig) validate() error {
	switch g.Kind {
	case "single":
		if g.Size > 1 {
			return fmt.Errorf("group kind %q cannot have size %d", g.Kind, g.Size)
		}
	case "ws":
		if g.Size < 1 {
			return fmt.Errorf("group size must be at least 1, got %d", g.Size)
		}
		if g.Rank < 0 || g.Rank >= g.Size {
			return fmt.Errorf("group rank %d out of range for size %d", g.Rank, g.Size)
		}
		if g.Size > 1 && (g.RendezvousPort < 1 || g.RendezvousPort > 65535) {
			return fmt.Errorf("rendezvous port %d out of range", g.RendezvousPort)
		}
	default:
		return fmt.Errorf("unknown group kind %q", g.Kind)
	}
	return nil
}

// DSN renders the MySQL connection string for the history sink.
func (h *HistoryConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		h.User, h.Password, h.Host, h.Port, h.Database)
}

// SleepDuration converts the configured inter-checkpoint sleep,
// expressed in seconds, to a time.Duration.
func (r *RunConfig) SleepDuration() time.Duration {
	return time.Duration(r.InterCheckpointSleep * float64(time.Second))
}

// IntervalDuration converts the configured iostat interval to a
// time.Duration.
func (i *IostatConfig) IntervalDuration() time.Duration {
	return time.Duration(i.Interval) * time.Second
}

// IsLocalHost reports whether host names the machine this process runs
// on, either by a loopback literal or by the conventional names.
func IsLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
