// Package config holds the settings of the adaq8092 tool.
//
// Settings are layered: compiled defaults first, then an optional YAML file.
// Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"
)

// FileName is the configuration file looked for in the working directory
const FileName = "adaq8092.yml"

// Viewer configures the interactive figure viewer
type Viewer struct {
	// Addr is the HTTP listen address; port 0 picks a free port
	Addr string `koanf:"addr" yaml:"addr"`

	// Browser opens the system browser on the figure
	Browser bool `koanf:"browser" yaml:"browser"`
}

// Sim configures the simulated device
type Sim struct {
	// Addr is the listen address of the emulated iiod
	Addr string `koanf:"addr" yaml:"addr"`
}

// Config is the full configuration
type Config struct {
	// URI is the context URI, used when none is given on the command line
	URI string `koanf:"uri" yaml:"uri"`

	// BufferSize is the number of samples per channel captured
	BufferSize int `koanf:"buffersize" yaml:"buffersize"`

	// OutputType is raw or SI
	OutputType string `koanf:"outputtype" yaml:"outputtype"`

	// Timeout bounds each exchange with the device
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// LogLevel is one of error, warn, info, debug
	LogLevel string `koanf:"loglevel" yaml:"loglevel"`

	// Save, CSV and FITS are optional output paths
	Save string `koanf:"save" yaml:"save"`
	CSV  string `koanf:"csv" yaml:"csv"`
	FITS string `koanf:"fits" yaml:"fits"`

	Viewer Viewer `koanf:"viewer" yaml:"viewer"`
	Sim    Sim    `koanf:"sim" yaml:"sim"`
}

// Defaults returns the compiled in configuration
func Defaults() Config {
	return Config{
		BufferSize: 256,
		OutputType: "raw",
		Timeout:    5 * time.Second,
		LogLevel:   "info",
		Viewer:     Viewer{Addr: "127.0.0.1:0", Browser: true},
		Sim:        Sim{Addr: ":30431"},
	}
}

// Load layers the YAML file at path over the defaults.  A missing file is
// not an error.
func Load(path string) (Config, error) {
	var c Config
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return c, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return c, err
		}
	}
	if err := k.Unmarshal("", &c); err != nil {
		return c, err
	}
	if c.Timeout <= 0 {
		return c, fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return c, nil
}

// Write encodes c as YAML
func Write(w io.Writer, c Config) error {
	enc := yml.NewEncoder(w)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Mkconf writes c to path, replacing any file there
func Mkconf(path string, c Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = Write(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
