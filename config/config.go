// Package config loads the service configuration.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file, a .env file next to it, and ORDERS_* environment variables.
// Load validates the result, so a returned Config is usable as is.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/order-engine/engine"
	"github.com/warp/order-engine/store/flatfile"
)

type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Data     DataConfig            `yaml:"data"`
	Periods  PeriodsConfig         `yaml:"periods"`
	Columns  engine.CatalogColumns `yaml:"columns"`
	Renderer RendererConfig        `yaml:"renderer"`
	Archive  ArchiveConfig         `yaml:"archive"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DataConfig locates the tables. Catalog, AddedProducts and SnapshotsDir
// are relative to Dir.
type DataConfig struct {
	Dir           string `yaml:"dir"`
	Catalog       string `yaml:"catalog"`
	CatalogSheet  string `yaml:"catalog_sheet"`
	AddedProducts string `yaml:"added_products"`
	SnapshotsDir  string `yaml:"snapshots_dir"`

	// Delimiter and Encoding apply to CSV catalogs. The files this
	// service writes are always comma separated UTF-8.
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
}

// PeriodsConfig fixes the period column naming. There is no default.
type PeriodsConfig struct {
	Naming string `yaml:"naming"`
}

// RendererConfig points at the external PDF renderer. Empty URL disables
// PDF export.
type RendererConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the configuration used for anything the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Data: DataConfig{
			Dir:           "data",
			Catalog:       "catalog.csv",
			AddedProducts: "added_products.csv",
			SnapshotsDir:  "order_snapshots",
			Delimiter:     ",",
			Encoding:      "utf-8",
		},
		Columns:  engine.DefaultCatalogColumns(),
		Renderer: RendererConfig{Timeout: 30 * time.Second},
	}
}

// Load reads the YAML file at path (optional when empty), the .env file
// beside it and the environment, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Columns = cfg.Columns.WithDefaults()

	dotenv, err := godotenv.Read(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ORDERS_DATA_DIR":           &c.Data.Dir,
		"ORDERS_CATALOG":            &c.Data.Catalog,
		"ORDERS_CATALOG_SHEET":      &c.Data.CatalogSheet,
		"ORDERS_CATALOG_DELIMITER":  &c.Data.Delimiter,
		"ORDERS_CATALOG_ENCODING":   &c.Data.Encoding,
		"ORDERS_PERIOD_NAMING":      &c.Periods.Naming,
		"ORDERS_RENDERER_URL":       &c.Renderer.URL,
		"ORDERS_ARCHIVE_ENDPOINT":   &c.Archive.Endpoint,
		"ORDERS_ARCHIVE_REGION":     &c.Archive.Region,
		"ORDERS_ARCHIVE_BUCKET":     &c.Archive.Bucket,
		"ORDERS_ARCHIVE_ACCESS_KEY": &c.Archive.AccessKey,
		"ORDERS_ARCHIVE_SECRET_KEY": &c.Archive.SecretKey,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("ORDERS_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ORDERS_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("ORDERS_RENDERER_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ORDERS_RENDERER_TIMEOUT: %w", err)
		}
		c.Renderer.Timeout = d
	}
	for key, dst := range map[string]*bool{
		"ORDERS_ARCHIVE_ENABLED": &c.Archive.Enabled,
		"ORDERS_ARCHIVE_USE_SSL": &c.Archive.UseSSL,
	} {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	if v, ok := lookup("ORDERS_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Periods.Naming) == "" {
		return errors.New("periods.naming is required (one of es-month-yy, en-month-yyyy, en-mon-yy, iso-month)")
	}
	if _, err := engine.NewPeriodScheme(c.Periods.Naming); err != nil {
		return fmt.Errorf("periods.naming: %w", err)
	}
	if c.Data.Dir == "" {
		return errors.New("data.dir is required")
	}
	switch strings.ToLower(filepath.Ext(c.Data.Catalog)) {
	case ".csv", ".txt", ".xlsx":
	default:
		return fmt.Errorf("data.catalog %q must be a .csv, .txt or .xlsx file", c.Data.Catalog)
	}
	if c.Data.AddedProducts == "" || c.Data.SnapshotsDir == "" {
		return errors.New("data.added_products and data.snapshots_dir are required")
	}
	if _, err := c.Data.DelimiterRune(); err != nil {
		return err
	}
	if _, err := flatfile.Encoding(c.Data.Encoding); err != nil {
		return fmt.Errorf("data.encoding: %w", err)
	}
	if c.Renderer.URL != "" {
		u, err := url.Parse(c.Renderer.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("renderer.url %q is not an http(s) URL", c.Renderer.URL)
		}
		if c.Renderer.Timeout <= 0 {
			return errors.New("renderer.timeout must be positive")
		}
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		return errors.New("archive.endpoint and archive.bucket are required when the archive is enabled")
	}
	return nil
}

// DelimiterRune returns the single-character catalog delimiter. "tab" and
// "\t" both mean a tab.
func (d DataConfig) DelimiterRune() (rune, error) {
	v := d.Delimiter
	if v == "" {
		return ',', nil
	}
	if v == "tab" || v == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(v) != 1 {
		return 0, fmt.Errorf("data.delimiter %q must be a single character", v)
	}
	r, _ := utf8.DecodeRuneInString(v)
	return r, nil
}

// CatalogIsWorkbook reports whether the catalog is an XLSX file.
func (d DataConfig) CatalogIsWorkbook() bool {
	return strings.EqualFold(filepath.Ext(d.Catalog), ".xlsx")
}

// PeriodScheme returns the validated period scheme.
func (c *Config) PeriodScheme() engine.PeriodScheme {
	s, _ := engine.NewPeriodScheme(c.Periods.Naming)
	return s
}
