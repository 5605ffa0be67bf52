package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the post-processing daemon configuration
type Config struct {
	Camera CameraConfig `yaml:"camera"`
	Log    LogConfig    `yaml:"log"`
	Pipes  []PipeConfig `yaml:"pipes"`
	SFL    SFLConfig    `yaml:"sfl"`
	API    APIConfig    `yaml:"api"`
}

// CameraConfig identifies the camera session
type CameraConfig struct {
	ID int `yaml:"id"`
}

// LogConfig configures the root logger
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// PipeConfig configures one post-processing pipe
type PipeConfig struct {
	ID string `yaml:"id"`

	// Head stage: a factory name (libacryl, jpeg, ...) or a numeric id
	Node string `yaml:"node"`

	// Stages linked behind the head at build time, in order
	Fallbacks []string `yaml:"fallbacks"`

	// Stage attached on first use when the head cannot serve a frame and
	// has nothing linked behind it
	LazyFallback string `yaml:"lazy_fallback"`

	// Engage the stage for continuous processing while the pipe runs
	Engage bool `yaml:"engage"`

	QueueSize int `yaml:"queue_size"`
}

// SFLConfig configures the special function library manager
type SFLConfig struct {
	Name   string   `yaml:"name"`
	Enable []string `yaml:"enable"` // library types enabled at startup
}

// APIConfig configures the control API
type APIConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults
func ParseConfig(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.SFL.Name == "" {
		cfg.SFL.Name = "SFL_MGR"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}

	seen := make(map[string]bool)
	for i := range cfg.Pipes {
		p := &cfg.Pipes[i]
		if p.ID == "" {
			p.ID = fmt.Sprintf("pipe%d", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("parse config: duplicate pipe id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Node == "" {
			return nil, fmt.Errorf("parse config: pipe %s has no node", p.ID)
		}
		if p.QueueSize == 0 {
			p.QueueSize = 4
		}
	}

	return &cfg, nil
}

// NewLogger builds the root logger from the log section
func NewLogger(cfg LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return nil, fmt.Errorf("log format %q", cfg.Format)
	}
	return logger, nil
}
