package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-modpanel/internal/api"
	"go-modpanel/internal/database"
	"go-modpanel/internal/models"
	"go-modpanel/internal/paths"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultBaseURL             = api.DefaultBaseURL
	DefaultStoreBackend        = database.BackendSQLite
	DefaultLogApiRequests      = false
	DefaultAPIClientTimeoutSec = 30 // seconds
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultArchiveLogs         = false
	DefaultConfigFilePath      = "config.toml"
	EnvPrefix                  = "MODPANEL"
)

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("baseurl", DefaultBaseURL)
	v.SetDefault("statepath", paths.DefaultStateDir())
	v.SetDefault("storebackend", DefaultStoreBackend)
	v.SetDefault("indexpath", "") // Derived from StatePath when empty
	v.SetDefault("logapirequests", DefaultLogApiRequests)
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("archivelogs", DefaultArchiveLogs)
}

// Defaults returns the configuration used when no file, env or flag sets a value.
func Defaults() models.Config {
	return models.Config{
		BaseURL:             DefaultBaseURL,
		StatePath:           paths.DefaultStateDir(),
		StoreBackend:        DefaultStoreBackend,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
		APIClientTimeoutSec: DefaultAPIClientTimeoutSec,
		LogApiRequests:      DefaultLogApiRequests,
		ArchiveLogs:         DefaultArchiveLogs,
	}
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath      *string
	BaseURL             *string // --base-url
	StatePath           *string // --state-path
	StoreBackend        *string // --store
	IndexPath           *string // --index-path
	LogLevel            *string // --log-level
	LogFormat           *string // --log-format
	LogApiRequests      *bool   // --log-api
	APIClientTimeoutSec *int    // --api-timeout
	ArchiveLogs         *bool   // --archive
}

// Initialize loads configuration based on defaults, config file, environment and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	finalCfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
		log.Debugf("[Initialize] Using config file path from CLI flag: %s", actualConfigFilePath)
	} else {
		actualConfigFilePath = defaultConfigFile()
		log.Debugf("[Initialize] Using default config file path: %s", actualConfigFilePath)
	}
	v.SetConfigFile(actualConfigFilePath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			log.Debugf("[Initialize] Config file '%s' not found. Using defaults, environment and CLI flags.", actualConfigFilePath)
		} else {
			log.Warnf("[Initialize] Error reading config file '%s': %v. Using defaults, environment and CLI flags.", actualConfigFilePath, err)
		}
	} else {
		log.Debugf("[Initialize] Successfully read config file: %s", v.ConfigFileUsed())
	}

	// Unmarshal only sees env values for keys viper knows about, which
	// setViperDefaults guarantees.
	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	// --- Override with CLI Flags ---
	if flags.BaseURL != nil {
		log.Debugf("[Initialize] Overriding BaseURL from flag: '%s'", *flags.BaseURL)
		finalCfg.BaseURL = *flags.BaseURL
	}
	if flags.StatePath != nil {
		log.Debugf("[Initialize] Overriding StatePath from flag: '%s'", *flags.StatePath)
		finalCfg.StatePath = *flags.StatePath
	}
	if flags.StoreBackend != nil {
		log.Debugf("[Initialize] Overriding StoreBackend from flag: '%s'", *flags.StoreBackend)
		finalCfg.StoreBackend = *flags.StoreBackend
	}
	if flags.IndexPath != nil {
		log.Debugf("[Initialize] Overriding IndexPath from flag: '%s'", *flags.IndexPath)
		finalCfg.IndexPath = *flags.IndexPath
	}
	if flags.LogLevel != nil {
		log.Debugf("[Initialize] Overriding LogLevel from flag: '%s'", *flags.LogLevel)
		finalCfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		log.Debugf("[Initialize] Overriding LogFormat from flag: '%s'", *flags.LogFormat)
		finalCfg.LogFormat = *flags.LogFormat
	}
	if flags.LogApiRequests != nil {
		log.Debugf("[Initialize] Overriding LogApiRequests from flag: %v", *flags.LogApiRequests)
		finalCfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.APIClientTimeoutSec != nil {
		log.Debugf("[Initialize] Overriding APIClientTimeoutSec from flag: %d", *flags.APIClientTimeoutSec)
		finalCfg.APIClientTimeoutSec = *flags.APIClientTimeoutSec
	}
	if flags.ArchiveLogs != nil {
		log.Debugf("[Initialize] Overriding ArchiveLogs from flag: %v", *flags.ArchiveLogs)
		finalCfg.ArchiveLogs = *flags.ArchiveLogs
	}

	// --- Derive paths ---
	statePath, err := paths.ExpandHome(finalCfg.StatePath)
	if err != nil {
		return models.Config{}, nil, err
	}
	finalCfg.StatePath = statePath
	if finalCfg.IndexPath, err = paths.IndexPath(finalCfg.StatePath, finalCfg.IndexPath); err != nil {
		return models.Config{}, nil, err
	}

	if err := Validate(finalCfg); err != nil {
		return models.Config{}, nil, err
	}

	// --- Setup HTTP Transport ---
	baseTransport := http.DefaultTransport
	var finalTransport http.RoundTripper = baseTransport

	if finalCfg.LogApiRequests {
		log.Debug("API request logging enabled.")
		logFilePath := paths.APILogFile
		if mkErr := os.MkdirAll(finalCfg.StatePath, 0o750); mkErr == nil {
			logFilePath = filepath.Join(finalCfg.StatePath, paths.APILogFile)
		} else {
			log.Warnf("StatePath '%s' not usable, saving api.log to current directory.", finalCfg.StatePath)
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			finalTransport = loggingTransport
		}
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, finalTransport, nil
}

// defaultConfigFile is ./config.toml, or config.toml in the per-user state
// directory when the working directory has none.
func defaultConfigFile() string {
	if _, err := os.Stat(DefaultConfigFilePath); err == nil {
		return DefaultConfigFilePath
	}
	user := filepath.Join(paths.DefaultStateDir(), DefaultConfigFilePath)
	if _, err := os.Stat(user); err == nil {
		return user
	}
	return DefaultConfigFilePath
}

// Validate checks values that would otherwise fail later in confusing ways.
func Validate(cfg models.Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("BaseURL cannot be empty (set via --base-url flag or BaseURL in config)")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("BaseURL must start with http:// or https://, got '%s'", cfg.BaseURL)
	}
	if cfg.StatePath == "" {
		return fmt.Errorf("StatePath cannot be empty (set via --state-path flag or StatePath in config)")
	}
	switch cfg.StoreBackend {
	case database.BackendSQLite, database.BackendBitcask:
	default:
		return fmt.Errorf("StoreBackend must be %q or %q, got '%s'", database.BackendSQLite, database.BackendBitcask, cfg.StoreBackend)
	}
	if cfg.APIClientTimeoutSec < 0 {
		return fmt.Errorf("ApiClientTimeoutSec cannot be negative, got %d", cfg.APIClientTimeoutSec)
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LogLevel '%s': %w", cfg.LogLevel, err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LogFormat must be text or json, got '%s'", cfg.LogFormat)
	}
	return nil
}

// WriteDefault writes a config file holding the default values. An existing
// file is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	// #nosec G304
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	cfg := Defaults()
	// Leave IndexPath empty so it follows StatePath.
	cfg.IndexPath = ""
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
