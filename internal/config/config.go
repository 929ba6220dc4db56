package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Stations   StationsConfig   `yaml:"stations" mapstructure:"stations"`
	Conversion ConversionConfig `yaml:"conversion" mapstructure:"conversion"`
	Orbit      OrbitConfig      `yaml:"orbit" mapstructure:"orbit"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Transforms TransformConfig  `yaml:"transforms" mapstructure:"transforms"`
	RealTime   RealTimeConfig   `yaml:"realtime" mapstructure:"realtime"`
	Metadata   MetadataConfig   `yaml:"metadata" mapstructure:"metadata"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Preflight  PreflightConfig  `yaml:"preflight" mapstructure:"preflight"`
}

// PathsConfig locates raw data, results and scratch space. RawPattern may
// contain path tokens and glob wildcards.
type PathsConfig struct {
	RawPattern string `yaml:"raw_pattern" mapstructure:"raw_pattern"`
	ResultRoot string `yaml:"result_root" mapstructure:"result_root"`
	WorkDir    string `yaml:"work_dir" mapstructure:"work_dir"`
	LockFile   string `yaml:"lock_file" mapstructure:"lock_file"`
}

// StationsConfig selects stations and carries inline metadata overrides.
type StationsConfig struct {
	List    []string                   `yaml:"list" mapstructure:"list"`
	FromDir string                     `yaml:"from_dir" mapstructure:"from_dir"`
	File    string                     `yaml:"file" mapstructure:"file"`
	Inline  map[string]StationOverride `yaml:"inline" mapstructure:"inline"`
}

// StationOverride is the inline metadata for one station.
type StationOverride struct {
	Receiver string    `yaml:"receiver" mapstructure:"receiver"`
	Antenna  string    `yaml:"antenna" mapstructure:"antenna"`
	Position []float64 `yaml:"position" mapstructure:"position"`
}

// ConversionConfig configures the raw-to-observation converter.
type ConversionConfig struct {
	Binary  string   `yaml:"binary" mapstructure:"binary"`
	Options []string `yaml:"options" mapstructure:"options"`
}

// OrbitConfig configures the local orbit cache and how it is filled.
// An empty CacheDir lets the engine fetch products itself.
type OrbitConfig struct {
	CacheDir  string             `yaml:"cache_dir" mapstructure:"cache_dir"`
	Retriever string             `yaml:"retriever" mapstructure:"retriever"`
	Command   OrbitCommandConfig `yaml:"command" mapstructure:"command"`
	FTP       OrbitFTPConfig     `yaml:"ftp" mapstructure:"ftp"`
}

// OrbitCommandConfig configures the external retrieval tool.
type OrbitCommandConfig struct {
	Binary  string   `yaml:"binary" mapstructure:"binary"`
	Options []string `yaml:"options" mapstructure:"options"`
}

// OrbitFTPConfig configures direct retrieval from an FTP product archive.
type OrbitFTPConfig struct {
	URLTemplate string   `yaml:"url_template" mapstructure:"url_template"`
	Products    []string `yaml:"products" mapstructure:"products"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxAttempts int      `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// EngineConfig configures the positioning engine.
type EngineConfig struct {
	Binary               string   `yaml:"binary" mapstructure:"binary"`
	Options              []string `yaml:"options" mapstructure:"options"`
	ParamFile            string   `yaml:"param_file" mapstructure:"param_file"`
	CovFile              string   `yaml:"cov_file" mapstructure:"cov_file"`
	TreeFile             string   `yaml:"tree_file" mapstructure:"tree_file"`
	AntexFile            string   `yaml:"antex_file" mapstructure:"antex_file"`
	ErrorPatterns        []string `yaml:"error_patterns" mapstructure:"error_patterns"`
	OrbitMissingPatterns []string `yaml:"orbit_missing_patterns" mapstructure:"orbit_missing_patterns"`
}

// TransformConfig configures post-solution reference-frame corrections.
type TransformConfig struct {
	CenterOfFigure bool     `yaml:"center_of_figure" mapstructure:"center_of_figure"`
	NonFiducial    bool     `yaml:"non_fiducial" mapstructure:"non_fiducial"`
	FrameBinary    string   `yaml:"frame_binary" mapstructure:"frame_binary"`
	FrameOptions   []string `yaml:"frame_options" mapstructure:"frame_options"`
	HelmertBinary  string   `yaml:"helmert_binary" mapstructure:"helmert_binary"`
	HelmertOptions []string `yaml:"helmert_options" mapstructure:"helmert_options"`
	XFilePattern   string   `yaml:"xfile_pattern" mapstructure:"xfile_pattern"`
	Troposphere    bool     `yaml:"troposphere" mapstructure:"troposphere"`
}

// RealTimeConfig configures the trailing real-time window.
type RealTimeConfig struct {
	Enabled      bool     `yaml:"enabled" mapstructure:"enabled"`
	Binary       string   `yaml:"binary" mapstructure:"binary"`
	Options      []string `yaml:"options" mapstructure:"options"`
	DelayMinutes int      `yaml:"delay_minutes" mapstructure:"delay_minutes"`
	WindowHours  int      `yaml:"window_hours" mapstructure:"window_hours"`
}

// MetadataConfig lists the external metadata tables in precedence order.
type MetadataConfig struct {
	Sources []MetadataSource `yaml:"sources" mapstructure:"sources"`
}

// MetadataSource is one lookup table. Key is "yeardoy" or "iso".
type MetadataSource struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Binary   string `yaml:"binary" mapstructure:"binary"`
	Path     string `yaml:"path" mapstructure:"path"`
	Key      string `yaml:"key" mapstructure:"key"`
	Position bool   `yaml:"position" mapstructure:"position"`
}

// LedgerConfig configures the run history backend.
type LedgerConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// MetricsConfig configures the node_exporter textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// PreflightConfig configures start-up checks.
type PreflightConfig struct {
	MinFreePercent float64 `yaml:"min_free_percent" mapstructure:"min_free_percent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path searches
// for gnssproc.yaml in the working directory and $HOME/.gnssproc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gnssproc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gnssproc")
	}

	// Environment
	v.SetEnvPrefix("GNSSPROC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Stations.File != "" {
		fromFile, err := LoadStationsFile(cfg.Stations.File)
		if err != nil {
			return nil, err
		}
		cfg.Stations.Inline = mergeInline(fromFile, cfg.Stations.Inline)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.work_dir", filepath.Join(os.TempDir(), "gnssproc"))
	v.SetDefault("paths.lock_file", filepath.Join(os.TempDir(), "gnssproc.lock"))
	v.SetDefault("conversion.binary", "teqc")
	v.SetDefault("orbit.retriever", "command")
	v.SetDefault("orbit.command.binary", "fetchGNSSproducts")
	v.SetDefault("orbit.ftp.url_template", "ftp://sideshow.jpl.nasa.gov/pub/JPL_GNSS_Products/{label}/{yyyy}/{date}.{product}")
	v.SetDefault("orbit.ftp.products", []string{"eo.gz", "pos.gz", "tdp.gz", "wlpb.gz"})
	v.SetDefault("orbit.ftp.timeout_secs", 60)
	v.SetDefault("orbit.ftp.rate_per_sec", 2.0)
	v.SetDefault("orbit.ftp.max_attempts", 3)
	v.SetDefault("engine.binary", "gd2e.py")
	v.SetDefault("engine.param_file", "smoothFinal.tdp")
	v.SetDefault("engine.cov_file", "smoothFinal.gdcov")
	v.SetDefault("engine.tree_file", "ppp_0.tree")
	v.SetDefault("engine.error_patterns", []string{
		"REC # / TYPE / VERS",
		"ANT # / TYPE",
		"APPROX POSITION XYZ",
		"ANTENNA: DELTA H/E/N",
	})
	v.SetDefault("engine.orbit_missing_patterns", []string{
		`(?i)orbit.*not (yet )?available`,
		`(?i)unable to (fetch|retrieve) .*products`,
	})
	v.SetDefault("transforms.frame_binary", "apply_cmc")
	v.SetDefault("transforms.helmert_binary", "netApply")
	v.SetDefault("transforms.xfile_pattern", "{cache}/Final/{yyyy}/{date}.x.gz")
	v.SetDefault("realtime.binary", "gfzrnx")
	v.SetDefault("realtime.delay_minutes", 60)
	v.SetDefault("realtime.window_hours", 30)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", "gnssproc.db")
	v.SetDefault("preflight.min_free_percent", 5.0)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.ResultRoot) == "" {
		return eris.New("config: paths.result_root is required")
	}
	if strings.TrimSpace(c.Paths.RawPattern) == "" {
		return eris.New("config: paths.raw_pattern is required")
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return eris.New("config: paths.work_dir is required")
	}
	if overlaps(c.Paths.WorkDir, c.Paths.ResultRoot) {
		return eris.Errorf("config: paths.work_dir %q and paths.result_root %q must not contain each other", c.Paths.WorkDir, c.Paths.ResultRoot)
	}
	switch c.Orbit.Retriever {
	case "command", "ftp":
	default:
		return eris.Errorf("config: unknown orbit.retriever %q (valid: command, ftp)", c.Orbit.Retriever)
	}
	switch c.Ledger.Driver {
	case "sqlite", "postgres", "none":
	default:
		return eris.Errorf("config: unknown ledger.driver %q (valid: sqlite, postgres, none)", c.Ledger.Driver)
	}
	if c.RealTime.WindowHours <= 0 {
		return eris.Errorf("config: realtime.window_hours must be positive, got %d", c.RealTime.WindowHours)
	}
	if c.RealTime.DelayMinutes < 0 {
		return eris.Errorf("config: realtime.delay_minutes must not be negative, got %d", c.RealTime.DelayMinutes)
	}
	if c.Transforms.NonFiducial && c.Transforms.XFilePattern == "" {
		return eris.New("config: transforms.non_fiducial requires transforms.xfile_pattern")
	}
	for name, o := range c.Stations.Inline {
		if len(o.Position) != 0 && len(o.Position) != 3 {
			return eris.Errorf("config: station %s position needs 3 coordinates, got %d", name, len(o.Position))
		}
	}
	for _, s := range c.Metadata.Sources {
		if s.Key != "yeardoy" && s.Key != "iso" {
			return eris.Errorf("config: metadata source %q key must be yeardoy or iso", s.Name)
		}
	}
	return nil
}

// overlaps reports whether a and b are the same directory or one is inside
// the other.
func overlaps(a, b string) bool {
	a, errA := filepath.Abs(a)
	b, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return within(a, b) || within(b, a)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
