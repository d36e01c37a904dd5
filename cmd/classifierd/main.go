// classifier/cmd/classifierd/main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"rgehrsitz/classifier/pkg/analysis"
	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/logging"
	"rgehrsitz/classifier/pkg/metrics"
	"rgehrsitz/classifier/pkg/runtime"
	"rgehrsitz/classifier/pkg/server"
	"rgehrsitz/classifier/pkg/store"
	"rgehrsitz/classifier/pkg/watcher"
)

const (
	sourceFile  = "file"
	sourceRedis = "redis"
)

// Config represents the application configuration
type Config struct {
	Port              int
	CategoriesFile    string
	SourceKind        string
	DefaultField      string
	SettleInterval    time.Duration
	LogLevel          string
	LogDestination    string
	RedisAddress      string
	RedisPassword     string
	RedisDB           int
	RedisKey          string
	RedisChannel      string
	MetricsEnabled    bool
	DashboardEnabled  bool
	DashboardInterval time.Duration
}

// Dependencies are the wired components of a running service
type Dependencies struct {
	Source    store.Notifier
	Store     *store.RuleStore
	Engine    *runtime.Engine
	Watcher   *watcher.ConfigWatcher
	Dashboard *server.Dashboard
	Server    *server.Server
	Registry  *prometheus.Registry
}

// SourceFactory creates the rule source named by the configuration
type SourceFactory interface {
	NewSource(ctx context.Context, config *Config) (store.Notifier, error)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, os.Args, &RealSourceFactory{}); err != nil {
		log.Fatal().Err(err).Msg("Classifier service failed")
	}
}

func run(ctx context.Context, args []string, sourceFactory SourceFactory) error {
	config, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := logging.ConfigureLogger(config.LogLevel, config.LogDestination); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	deps, err := setupDependencies(ctx, config, sourceFactory)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}

	return runService(ctx, deps, config)
}

// parseConfig reads --config and the optional positional <port> <file>
// arguments. Positional arguments override the configuration file.
func parseConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, logging.NewError(logging.ErrorTypeConfig, "invalid command line", err, nil)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("server.port", 9090)
	v.SetDefault("categories.file", "categories.properties")
	v.SetDefault("categories.source", sourceFile)
	v.SetDefault("categories.default_field", compiler.DefaultField)
	v.SetDefault("watcher.settle_interval_ms", int(watcher.DefaultSettleInterval/time.Millisecond))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.key", store.DefaultRedisKey)
	v.SetDefault("redis.channel", store.DefaultRedisChannel)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.update_interval", 5)

	v.SetEnvPrefix("CLASSIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile == "" {
		v.SetConfigName("classifier_config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.classifier")
		v.AddConfigPath("/etc/classifier")
	} else {
		v.SetConfigFile(*configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			return nil, logging.NewError(logging.ErrorTypeConfig, "error reading config file", err, nil)
		}
		log.Info().Msg("No configuration file found, using defaults")
	}

	config := &Config{
		Port:              v.GetInt("server.port"),
		CategoriesFile:    v.GetString("categories.file"),
		SourceKind:        strings.ToLower(v.GetString("categories.source")),
		DefaultField:      v.GetString("categories.default_field"),
		SettleInterval:    time.Duration(v.GetInt("watcher.settle_interval_ms")) * time.Millisecond,
		LogLevel:          v.GetString("logging.level"),
		LogDestination:    v.GetString("logging.output"),
		RedisAddress:      v.GetString("redis.address"),
		RedisPassword:     v.GetString("redis.password"),
		RedisDB:           v.GetInt("redis.database"),
		RedisKey:          v.GetString("redis.key"),
		RedisChannel:      v.GetString("redis.channel"),
		MetricsEnabled:    v.GetBool("metrics.enabled"),
		DashboardEnabled:  v.GetBool("dashboard.enabled"),
		DashboardInterval: time.Duration(v.GetInt("dashboard.update_interval")) * time.Second,
	}

	switch positional := fs.Args(); len(positional) {
	case 0:
	case 2:
		port, err := strconv.Atoi(positional[0])
		if err != nil {
			return nil, logging.NewError(logging.ErrorTypeConfig, fmt.Sprintf("invalid port %q", positional[0]), err, nil)
		}
		config.Port = port
		config.CategoriesFile = positional[1]
		config.SourceKind = sourceFile
	default:
		log.Warn().Strs("args", positional).Msg("Expected a port and a path to a .properties file, ignoring positional arguments")
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Port < 0 || config.Port > 65535 {
		return logging.NewError(logging.ErrorTypeConfig, fmt.Sprintf("port %d out of range", config.Port), nil, nil)
	}
	if config.SourceKind != sourceFile && config.SourceKind != sourceRedis {
		return logging.NewError(logging.ErrorTypeConfig, fmt.Sprintf("unknown categories source %q", config.SourceKind), nil, nil)
	}
	if config.SourceKind == sourceFile && config.CategoriesFile == "" {
		return logging.NewError(logging.ErrorTypeConfig, "categories.file is required for a file source", nil, nil)
	}
	if config.DefaultField == "" {
		return logging.NewError(logging.ErrorTypeConfig, "categories.default_field must not be empty", nil, nil)
	}
	if config.SettleInterval < 0 {
		return logging.NewError(logging.ErrorTypeConfig, "watcher.settle_interval_ms must not be negative", nil, nil)
	}
	return nil
}

func setupDependencies(ctx context.Context, config *Config, sourceFactory SourceFactory) (*Dependencies, error) {
	source, err := sourceFactory.NewSource(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule source: %w", err)
	}

	var registry *prometheus.Registry
	var m *metrics.Metrics
	if config.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
	}

	analyzer := analysis.New()
	rules := store.NewRuleStore(compiler.NewCompiler(config.DefaultField, analyzer), source, m)
	engine := runtime.NewEngine(analyzer, rules, m)

	deps := &Dependencies{
		Source:   source,
		Store:    rules,
		Engine:   engine,
		Watcher:  watcher.New(rules, source, config.SettleInterval),
		Registry: registry,
	}

	opts := server.Options{Source: source.Name()}
	if registry != nil {
		opts.Gatherer = registry
	}
	if config.DashboardEnabled {
		deps.Dashboard = server.NewDashboard(rules, source.Name(), config.DashboardInterval)
		rules.OnSwap(deps.Dashboard.NotifySwap)
		opts.Dashboard = deps.Dashboard
	}
	deps.Server = server.New(engine, rules, opts)
	return deps, nil
}

func runService(ctx context.Context, deps *Dependencies, config *Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		if closer, ok := deps.Source.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close rule source")
			}
		}
	}()

	// a source that cannot be read yet is not fatal: the watcher picks up
	// the rules once they appear, and /reload can be used meanwhile
	if err := deps.Store.Reload(ctx); err != nil {
		log.Warn().Err(err).Str("source", deps.Source.Name()).Msg("Starting with an empty rule set")
	}

	if err := deps.Watcher.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Rules will only reload through POST /reload")
	}
	defer deps.Watcher.Stop()

	if deps.Dashboard != nil {
		go deps.Dashboard.Run(ctx)
	}

	log.Info().Int("port", config.Port).Str("source", deps.Source.Name()).Msg("Classifier service started")
	return deps.Server.Run(ctx, fmt.Sprintf(":%d", config.Port))
}

// RealSourceFactory implements SourceFactory
type RealSourceFactory struct{}

func (f *RealSourceFactory) NewSource(ctx context.Context, config *Config) (store.Notifier, error) {
	switch config.SourceKind {
	case sourceRedis:
		source, err := store.NewRedisSource(ctx, config.RedisAddress, config.RedisPassword, config.RedisDB, config.RedisKey, config.RedisChannel)
		if err != nil {
			return nil, err
		}
		return source, nil
	case sourceFile:
		return store.NewFileSource(config.CategoriesFile), nil
	default:
		return nil, logging.NewError(logging.ErrorTypeConfig, fmt.Sprintf("unknown categories source %q", config.SourceKind), nil, nil)
	}
}
