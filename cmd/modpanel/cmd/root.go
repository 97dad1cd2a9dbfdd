package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modpanel/internal/api"
	"go-modpanel/internal/config"
	"go-modpanel/internal/database"
	"go-modpanel/internal/logarchive"
	"go-modpanel/internal/models"
	"go-modpanel/internal/paths"
	"go-modpanel/internal/prefs"
)

// Persistent flag values. They only override the config when the flag was
// set on the command line.
var (
	cfgFile        string
	baseURLFlag    string
	statePathFlag  string
	storeFlag      string
	indexPathFlag  string
	logLevel       string
	logFormat      string
	logApiFlag     bool
	apiTimeoutFlag int
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modpanel",
	Short: "Terminal control panel for the mod management job backend",
	Long: `modpanel logs in to a mod management backend, starts and stops
scrape, update, fix and map jobs, and follows their progress and logs.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	closeState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml, then config.toml in the state directory)")
	pf.StringVar(&baseURLFlag, "base-url", "", "Backend base URL (overrides config)")
	pf.StringVar(&statePathFlag, "state-path", "", "Directory for local state (overrides config)")
	pf.StringVar(&storeFlag, "store", "", "State store backend: sqlite or bitcask (overrides config)")
	pf.StringVar(&indexPathFlag, "index-path", "", "Log archive index directory (overrides config)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log in the state directory (overrides config)")
	pf.IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")
}

// cliFlags collects the persistent flags the user actually set.
func cliFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{}
	changed := cmd.Flags().Changed
	if changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if changed("base-url") {
		flags.BaseURL = &baseURLFlag
	}
	if changed("state-path") {
		flags.StatePath = &statePathFlag
	}
	if changed("store") {
		flags.StoreBackend = &storeFlag
	}
	if changed("index-path") {
		flags.IndexPath = &indexPathFlag
	}
	if changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if changed("api-timeout") && apiTimeoutFlag >= 0 {
		flags.APIClientTimeoutSec = &apiTimeoutFlag
	}
	if f := cmd.Flags().Lookup("archive"); f != nil && f.Changed {
		flags.ArchiveLogs = &archiveFlag
	}
	return flags
}

// loadGlobalConfig loads the configuration and applies flag overrides.
// It also sets up logging and the HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	cfg, transport, err := config.Initialize(cliFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	globalConfig = cfg
	globalHttpTransport = transport
	initLogging(cfg, os.Stderr)
	log.Debugf("Using state directory %s", cfg.StatePath)
	return nil
}

// initLogging applies the configured level and format to the standard logger.
func initLogging(cfg models.Config, out io.Writer) {
	log.SetOutput(out)
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// appState is the local state and backend client shared by commands.
type appState struct {
	store   database.Store
	prefs   *prefs.Store
	creds   *prefs.Credentials
	client  *api.Client
	archive *logarchive.Archive
}

var state *appState

// openState opens the configured store and builds the API client on it.
func openState() (*appState, error) {
	if state != nil {
		return state, nil
	}
	storePath, err := paths.StorePath(globalConfig.StatePath, globalConfig.StoreBackend)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(globalConfig.StatePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := database.OpenStore(globalConfig.StoreBackend, storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	creds := prefs.NewCredentials(store)
	httpClient := &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.APIClientTimeoutSec) * time.Second,
	}
	state = &appState{
		store:  store,
		prefs:  prefs.New(store),
		creds:  creds,
		client: api.NewClient(globalConfig.BaseURL, httpClient, creds),
	}
	return state, nil
}

// openArchive opens the log archive on first use.
func (s *appState) openArchive() (*logarchive.Archive, error) {
	if s.archive != nil {
		return s.archive, nil
	}
	a, err := logarchive.Open(globalConfig.IndexPath)
	if err != nil {
		return nil, err
	}
	s.archive = a
	return a, nil
}

func closeState() {
	if state != nil {
		if state.archive != nil {
			if err := state.archive.Close(); err != nil {
				log.WithError(err).Warn("Failed to close log archive")
			}
		}
		if err := state.store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close state store")
		}
		state = nil
	}
	api.CloseAllLoggingTransports()
}
