package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts values like "60s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Camera holds the RTSP endpoint settings.
type Camera struct {
	IP       string `yaml:"ip"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port"`
	Channel  int    `yaml:"channel"`
}

// Config is the explicit configuration value handed to each component
// constructor. Credentials come from the environment (.env supported);
// everything else can also come from a YAML file and flags.
type Config struct {
	Camera      Camera        `yaml:"camera"`
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Prompt      string        `yaml:"prompt"`
	Temperature float64       `yaml:"temperature"`
	Interval    Duration      `yaml:"interval"`
	Duration    Duration      `yaml:"duration"`
	OutputDir   string        `yaml:"output_dir"`
	JournalPath string        `yaml:"journal"`

	// env-only, never read from a config file on disk
	BotToken string `yaml:"-"`
	ChatID   int64  `yaml:"chat_id"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Provider:  "gemini",
		Interval:  Duration(60 * time.Second),
		OutputDir: "surveillance",
	}
}

var defaultModels = map[string]string{
	"gemini": "gemini-2.0-flash",
	"openai": "gpt-4o",
	"ollama": "llama3.2-vision",
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("CAMERA_IP"); v != "" {
		cfg.Camera.IP = v
	}
	if v := os.Getenv("CAMERA_USERNAME"); v != "" {
		cfg.Camera.Username = v
	}
	if v := os.Getenv("CAMERA_PASSWORD"); v != "" {
		cfg.Camera.Password = v
	}
	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.ChatID = id
	}

	return cfg, nil
}

// Resolve fills in values that depend on other settings, after any
// flag overrides have been applied.
func (c *Config) Resolve() {
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
}

// Validate reports unrecoverable configuration errors. These are the
// only failures that terminate the process; everything past startup is
// handled per cycle. requireCamera is false in single-shot mode.
func (c *Config) Validate(requireCamera bool) error {
	if requireCamera {
		if c.Camera.IP == "" {
			return fmt.Errorf("camera IP is required (set camera.ip or CAMERA_IP)")
		}
		if c.Camera.Username == "" || c.Camera.Password == "" {
			return fmt.Errorf("camera credentials are required (set CAMERA_USERNAME and CAMERA_PASSWORD)")
		}
		if c.Interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", c.Interval)
		}
	}
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN must be set")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID must be set")
	}
	switch c.Provider {
	case "gemini":
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("GEMINI_API_KEY must be set for the gemini provider")
		}
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("OPENAI_API_KEY must be set for the openai provider")
		}
	case "ollama":
		// local service, no key
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	return nil
}
