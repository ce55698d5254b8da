// Package config loads the settings of the satafs command from an optional
// YAML file and SATAFS_* environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/tinykern/satafs"
	"github.com/tinykern/satafs/ahci"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "SATAFS"
	appName      = "satafs"
)

// Output formats of listings.
const (
	OutputText = "text"
	OutputYAML = "yaml"
)

// Config holds the command settings. Environment variables are the field names
// in upper snake case with a SATAFS_ prefix, e.g. SATAFS_POLL_BUDGET.
type Config struct {
	Image        string        `yaml:"image"`
	Raw          string        `yaml:"raw"`
	Port         int           `yaml:"port"`
	Partitioning string        `yaml:"partitioning"`
	SimulateAHCI bool          `split_words:"true" yaml:"simulateAHCI"`
	PollBudget   int           `split_words:"true" yaml:"pollBudget"`
	Timeout      time.Duration `yaml:"timeout"`
	LogLevel     string        `split_words:"true" yaml:"logLevel"`
	LogFormat    string        `split_words:"true" yaml:"logFormat"`
	Output       string        `yaml:"output"`
}

// Default returns the settings used for everything neither the file nor the environment sets.
func Default() Config {
	return Config{
		Partitioning: "auto",
		PollBudget:   ahci.DefaultPollBudget,
		LogLevel:     "info",
		LogFormat:    "text",
		Output:       OutputText,
	}
}

// DefaultFile is the config file read when no other one is given.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName+".yaml")
}

// Load reads the YAML file at path from fs and applies the environment on top.
// A missing file is only an error if it was asked for explicitly, by path or SATAFS_CONFIG_FILE.
func Load(fs afero.Fs, path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(envVarPrefix + "_CONFIG_FILE")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFile()
	}

	c := Default()
	if path != "" {
		data, err := afero.ReadFile(fs, path)
		switch {
		case os.IsNotExist(err) && !explicit:
		case err != nil:
			return Config{}, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return Config{}, fmt.Errorf("unmarshaling config file `%s`: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("parsing environment variables: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Image != "" && c.Raw != "" {
		return fmt.Errorf("invalid configuration: image / %s_IMAGE and raw / %s_RAW are exclusive", envVarPrefix, envVarPrefix)
	}
	if c.Port < 0 || c.Port >= ahci.MaxPorts {
		return fmt.Errorf("invalid configuration: port / %s_PORT is %d", envVarPrefix, c.Port)
	}
	if c.PollBudget <= 0 {
		return fmt.Errorf("invalid configuration: pollBudget / %s_POLL_BUDGET is %d", envVarPrefix, c.PollBudget)
	}
	if _, err := c.PartitionMode(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid configuration: logLevel / %s_LOG_LEVEL: %w", envVarPrefix, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid configuration: logFormat / %s_LOG_FORMAT is %q", envVarPrefix, c.LogFormat)
	}
	if c.Output != OutputText && c.Output != OutputYAML {
		return fmt.Errorf("invalid configuration: output / %s_OUTPUT is %q", envVarPrefix, c.Output)
	}
	return nil
}

// PartitionMode maps the partitioning setting to the mount option.
func (c *Config) PartitionMode() (satafs.Partitioning, error) {
	switch c.Partitioning {
	case "", "auto":
		return satafs.PartitionAuto, nil
	case "none":
		return satafs.PartitionNone, nil
	case "first":
		return satafs.PartitionFirst, nil
	}
	return 0, fmt.Errorf("invalid configuration: partitioning / %s_PARTITIONING is %q", envVarPrefix, c.Partitioning)
}

// Logger builds a logger writing to out with the configured level and format.
func (c *Config) Logger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}
