// Package config loads and validates lab configuration: which boards
// exist, how their power is switched, how their consoles are reached, and
// how their boot loaders and login shells behave.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root lab configuration.
type Config struct {
	Boards []BoardConfig `yaml:"boards"`

	// LogDir receives session event logs (JSONL). Empty disables them.
	LogDir string `yaml:"log_dir"`

	// DBPath is the sqlite run-history database. Empty disables it.
	DBPath string `yaml:"db_path"`
}

// BoardConfig describes one board.
type BoardConfig struct {
	Name    string        `yaml:"name"`
	Power   PowerConfig   `yaml:"power"`
	Console ConsoleConfig `yaml:"console"`
	UBoot   UBootConfig   `yaml:"uboot"`
	Linux   *LinuxConfig  `yaml:"linux,omitempty"`
}

// PowerConfig names the external commands switching the board's power
// domain. Both empty means the board is permanently powered.
type PowerConfig struct {
	OnCmd  []string `yaml:"on_cmd,omitempty"`
	OffCmd []string `yaml:"off_cmd,omitempty"`
}

// ConsoleConfig selects and parameterizes the console transport.
type ConsoleConfig struct {
	Type string `yaml:"type"` // "serial", "ssh" or "exec"

	Serial *SerialConsole `yaml:"serial,omitempty"`
	SSH    *SSHConsole    `yaml:"ssh,omitempty"`
	Exec   *ExecConsole   `yaml:"exec,omitempty"`
}

// SerialConsole is a local serial device.
type SerialConsole struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// SSHConsole reaches the console through a lab host over SSH, usually via
// a console-server command run on that host.
type SSHConsole struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`

	// Command is run instead of a login shell (e.g. "connect wandboard").
	// Empty requests an interactive shell with a PTY.
	Command string `yaml:"command,omitempty"`
}

// ExecConsole spawns a local process whose stdio is the console. Used by
// self-tests with a scripted shell.
type ExecConsole struct {
	Argv []string `yaml:"argv"`
}

// UBootConfig mirrors the boot-loader machine configuration.
type UBootConfig struct {
	Prompt         string   `yaml:"prompt"`
	AutobootPrompt string   `yaml:"autoboot_prompt,omitempty"`
	AutobootKeys   string   `yaml:"autoboot_keys,omitempty"`
	BootTimeout    Duration `yaml:"boot_timeout,omitempty"`
	CommandTimeout Duration `yaml:"command_timeout,omitempty"`
	PathRoot       string   `yaml:"path_root,omitempty"`
}

// LinuxConfig describes how to boot into and log into the OS shell.
type LinuxConfig struct {
	BootCommand    string   `yaml:"boot_command,omitempty"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password,omitempty"`
	LoginPrompt    string   `yaml:"login_prompt,omitempty"`
	PasswordPrompt string   `yaml:"password_prompt,omitempty"`
	Prompt         string   `yaml:"prompt,omitempty"`
	LoginTimeout   Duration `yaml:"login_timeout,omitempty"`
}

// Load reads and validates a lab configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects configurations the automaton could not act on.
func (c *Config) Validate() error {
	if len(c.Boards) == 0 {
		return fmt.Errorf("no boards defined")
	}
	seen := make(map[string]bool)
	for i := range c.Boards {
		b := &c.Boards[i]
		if b.Name == "" {
			return fmt.Errorf("board %d: missing name", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("board %q: duplicate name", b.Name)
		}
		seen[b.Name] = true
		if err := b.Console.validate(); err != nil {
			return fmt.Errorf("board %q: %w", b.Name, err)
		}
		if b.UBoot.Prompt == "" {
			return fmt.Errorf("board %q: uboot.prompt is required", b.Name)
		}
		if b.Linux != nil && b.Linux.Username == "" {
			return fmt.Errorf("board %q: linux.username is required", b.Name)
		}
	}
	return nil
}

func (c *ConsoleConfig) validate() error {
	switch c.Type {
	case "serial":
		if c.Serial == nil || c.Serial.Device == "" {
			return fmt.Errorf("console type serial needs serial.device")
		}
	case "ssh":
		if c.SSH == nil || c.SSH.Host == "" || c.SSH.User == "" {
			return fmt.Errorf("console type ssh needs ssh.host and ssh.user")
		}
	case "exec":
		if c.Exec == nil || len(c.Exec.Argv) == 0 {
			return fmt.Errorf("console type exec needs exec.argv")
		}
	case "":
		return fmt.Errorf("console.type is required")
	default:
		return fmt.Errorf("unknown console type %q", c.Type)
	}
	return nil
}

// Board returns the named board's configuration.
func (c *Config) Board(name string) (*BoardConfig, error) {
	for i := range c.Boards {
		if c.Boards[i].Name == name {
			return &c.Boards[i], nil
		}
	}
	return nil, fmt.Errorf("board %q not found in config", name)
}
