// Package config builds the service configuration from, in increasing
// precedence: built-in defaults, an optional remote default file, a local
// file, WFREPO_* environment variables and command-line flags.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/me/wftemplates/internal/loader"
)

// EnvConfig names the environment variable holding the local config file.
const EnvConfig = "WFREPO_CONFIG"

// EnvPrefix prefixes every environment override, e.g. WFREPO_SERVER_PORT.
const EnvPrefix = "WFREPO"

// DefaultLocalFile is read when EnvConfig is unset and the file exists.
const DefaultLocalFile = "./config.yaml"

// Config holds the service configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	App    AppConfig    `mapstructure:"app"`
	DB     DBConfig     `mapstructure:"db"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Fetch  FetchConfig  `mapstructure:"fetch"`

	// Sources lists the config files merged, lowest precedence first.
	Sources []string `mapstructure:"-"`
}

// ServerConfig describes where the API is served and how it is addressed.
type ServerConfig struct {
	URL     string `mapstructure:"url"`     // public server URL, e.g. http://localhost
	Port    int    `mapstructure:"port"`    // public port, omitted from links when 80
	AppPath string `mapstructure:"apppath"` // path prefix the API is mounted under
	Addr    string `mapstructure:"addr"`    // listen address, defaults to ":<port>"
}

type AppConfig struct {
	Name  string `mapstructure:"name"`
	Doc   string `mapstructure:"doc"` // URL of the API documentation
	Debug bool   `mapstructure:"debug"`
}

// DBConfig locates the template listing and the workflow schema. Each is
// either a path/URI string or a source handle mapping.
type DBConfig struct {
	URI    any    `mapstructure:"uri"`
	Schema any    `mapstructure:"schema"`
	Policy string `mapstructure:"policy"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"` // SQLite database, ":memory:" for none on disk
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json, pretty
	Dir    string `mapstructure:"dir"`    // error log directory, empty to disable
}

type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:     "http://localhost",
			Port:    5005,
			AppPath: "/workflow-repository/api/v1",
		},
		App: AppConfig{
			Name: "Workflow Template Server API",
		},
		DB: DBConfig{
			Policy: "fail-soft",
		},
		Store: StoreConfig{Path: ":memory:"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Fetch: FetchConfig{Timeout: 30 * time.Second},
	}
}

// BaseURL is the public URL of the API root, always ending in '/'.
func (c Config) BaseURL() string {
	u := strings.TrimSuffix(c.Server.URL, "/")
	if c.Server.Port != 80 && c.Server.Port != 0 {
		u += ":" + strconv.Itoa(c.Server.Port)
	}
	return u + c.Server.AppPath + "/"
}

// ListenAddr is the address the HTTP server binds.
func (c Config) ListenAddr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return ":" + strconv.Itoa(c.Server.Port)
}

// Validate checks values the rest of the service relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Server.AppPath != "" && !strings.HasPrefix(c.Server.AppPath, "/") {
		errs = append(errs, fmt.Errorf("server.apppath %q must start with '/'", c.Server.AppPath))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.DB.Policy {
	case "fail-soft", "fail-fast":
	default:
		errs = append(errs, fmt.Errorf("db.policy %q must be fail-soft or fail-fast", c.DB.Policy))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout %s is negative", c.Fetch.Timeout))
	}
	return errors.Join(errs...)
}

// LoadOptions controls Load.
type LoadOptions struct {
	// File is the local config file. Empty means $WFREPO_CONFIG, then
	// ./config.yaml when present. An explicitly named file must exist.
	File string

	// Remote is an optional default config file fetched through Fetcher.
	Remote  string
	Fetcher loader.Fetcher

	// Flags registered by RegisterFlags; only flags set on the command
	// line override other sources.
	Flags *pflag.FlagSet

	// Getenv replaces os.Getenv for locating the config file.
	Getenv func(string) string
}

// Load builds the configuration.
func Load(ctx context.Context, opts LoadOptions) (Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Listing and schema have no default; bind them so env can name a path.
	_ = v.BindEnv("db.uri")
	_ = v.BindEnv("db.schema")

	var sources []string
	if opts.Remote != "" {
		if opts.Fetcher == nil {
			return Config{}, fmt.Errorf("remote config %s: no fetcher", opts.Remote)
		}
		data, err := opts.Fetcher.Fetch(ctx, opts.Remote)
		if err != nil {
			return Config{}, fmt.Errorf("remote config: %w", err)
		}
		if err := merge(v, opts.Remote, data); err != nil {
			return Config{}, err
		}
		sources = append(sources, opts.Remote)
	}

	file, explicit := opts.File, opts.File != ""
	if file == "" {
		file = getenv(EnvConfig)
		explicit = file != ""
	}
	if file == "" {
		file = DefaultLocalFile
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := merge(v, file, data); err != nil {
			return Config{}, err
		}
		sources = append(sources, file)
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.AppPath = strings.TrimSuffix(cfg.Server.AppPath, "/")
	cfg.Sources = sources
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.apppath", d.Server.AppPath)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.doc", d.App.Doc)
	v.SetDefault("app.debug", d.App.Debug)
	v.SetDefault("db.policy", d.DB.Policy)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
}

// merge decodes a config file and merges it over the current settings.
// Files hold either {properties: [{key, value}, ...]} with dotted keys or
// a plain nested document.
func merge(v *viper.Viper, name string, data []byte) error {
	doc, err := loader.DecoderForURI(name).Decode(data)
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	if doc == nil {
		return nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return fmt.Errorf("config %s: expected a mapping, got %T", name, doc)
	}
	if list, ok := m["properties"].([]any); ok {
		flat, err := FromList(list, "key", "value")
		if err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
		if m, err = Nest(flat); err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
	}
	return v.MergeConfigMap(m)
}
