package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for secretsd.
type Config struct {
	// BusName overrides the well-known D-Bus name the service requests
	// (default org.freedesktop.secrets).
	BusName string `yaml:"bus_name"`

	// DefaultCollectionLabel is the Label given to the collection created
	// at startup under the "default" alias.
	DefaultCollectionLabel string `yaml:"default_collection_label"`

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFile is the path to the log file (empty for stderr).
	LogFile string `yaml:"log_file"`

	// Replace indicates whether to replace an existing secret-service provider.
	Replace bool `yaml:"replace"`

	// Verbose enables verbose logging.
	Verbose bool `yaml:"-"`

	// Debug enables debug logging.
	Debug bool `yaml:"-"`

	// ConfigPath is the path to the config file (set via CLI).
	ConfigPath string `yaml:"-"`

	// ShowVersion indicates whether to print version and exit.
	ShowVersion bool `yaml:"-"`
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BusName:                "org.freedesktop.secrets",
		DefaultCollectionLabel: "Default",
		LogLevel:               "info",
		LogFile:                "",
		Replace:                false,
	}
}

// Load loads configuration from CLI flags, environment, and config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := flag.String("c", "", "Path to config file")
	flag.StringVar(configPath, "config", "", "Path to config file")
	busName := flag.String("b", "", "D-Bus name to request")
	flag.StringVar(busName, "bus-name", "", "D-Bus name to request")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.BoolVar(verbose, "verbose", false, "Enable verbose logging")
	debug := flag.Bool("d", false, "Enable debug logging")
	flag.BoolVar(debug, "debug", false, "Enable debug logging")
	replace := flag.Bool("r", false, "Replace existing secret-service provider")
	flag.BoolVar(replace, "replace", false, "Replace existing secret-service provider")
	version := flag.Bool("version", false, "Print version and exit")
	help := flag.Bool("h", false, "Show help message")
	flag.BoolVar(help, "help", false, "Show help message")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}

	cfg.ShowVersion = *version
	cfg.Verbose = *verbose
	cfg.Debug = *debug
	if *replace {
		cfg.Replace = true
	}

	if *configPath != "" {
		cfg.ConfigPath = *configPath
	} else if envPath := os.Getenv("SECRET_SERVICE_CONFIG"); envPath != "" {
		cfg.ConfigPath = envPath
	} else {
		homeDir, _ := os.UserHomeDir()
		cfg.ConfigPath = filepath.Join(homeDir, ".config/secret-service/config.yaml")
	}

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.applyEnv()

	if *busName != "" {
		cfg.BusName = *busName
	}

	cfg.LogFile = expandPath(cfg.LogFile)

	if cfg.Debug {
		cfg.LogLevel = "debug"
	} else if cfg.Verbose {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SECRET_SERVICE_BUS_NAME"); v != "" {
		c.BusName = v
	}
	if v := os.Getenv("SECRET_SERVICE_DEFAULT_COLLECTION_LABEL"); v != "" {
		c.DefaultCollectionLabel = v
	}
	if v := os.Getenv("SECRET_SERVICE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SECRET_SERVICE_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("SECRET_SERVICE_REPLACE"); v == "true" || v == "1" {
		c.Replace = true
	}
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

func printUsage() {
	fmt.Println(`secretsd - in-memory freedesktop Secret Service D-Bus daemon

Usage:
  secretsd [options]

Options:
  -c, --config PATH        Path to config file (default: ~/.config/secret-service/config.yaml)
  -b, --bus-name NAME      D-Bus name to request (default: "org.freedesktop.secrets")
  -v, --verbose            Enable verbose logging
  -d, --debug              Enable debug logging
  -r, --replace            Replace existing secret-service provider
      --version            Print version and exit
  -h, --help               Show help message

Environment variables:
  SECRET_SERVICE_CONFIG                    Path to config file
  SECRET_SERVICE_BUS_NAME                  D-Bus name to request
  SECRET_SERVICE_DEFAULT_COLLECTION_LABEL  Label for the default collection
  SECRET_SERVICE_LOG_LEVEL                 Log level (debug, info, warn, error)
  SECRET_SERVICE_LOG_FILE                  Log file path
  SECRET_SERVICE_REPLACE                   Replace existing provider (true/1)`)
}
