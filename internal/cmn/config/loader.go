package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/portutil"
)

// ProjectConfigName is looked up in the work directory.
const ProjectConfigName = "devloop.yaml"

// ConfigLoader reads and merges configuration from the config file,
// environment variables and defaults.
type ConfigLoader struct {
	v          *viper.Viper
	configFile string
	workDir    string
	warnings   []string
}

// ConfigLoaderOption defines a functional option for configuring a ConfigLoader.
type ConfigLoaderOption func(*ConfigLoader)

// WithConfigFile sets an explicit configuration file, skipping the search.
func WithConfigFile(configFile string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.configFile = configFile
	}
}

// WithWorkDir overrides the work directory from every other source.
func WithWorkDir(dir string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.workDir = dir
	}
}

// NewConfigLoader creates a ConfigLoader with the given viper instance and options.
func NewConfigLoader(v *viper.Viper, options ...ConfigLoaderOption) *ConfigLoader {
	loader := &ConfigLoader{v: v}
	for _, opt := range options {
		opt(loader)
	}
	return loader
}

// Load reads configuration, applies defaults and environment overrides, and
// returns a validated Config.
func (l *ConfigLoader) Load() (*Config, error) {
	baseDir, err := l.baseDir()
	if err != nil {
		return nil, err
	}

	l.configureViper(baseDir)
	l.bindEnvironmentVariables()
	l.setViperDefaultValues()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var def Definition
	if err := l.v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.loadCaseSensitiveEnv(&def); err != nil {
		return nil, err
	}

	cfg, err := l.buildConfig(def, baseDir)
	if err != nil {
		return nil, err
	}
	cfg.Warnings = append(cfg.Warnings, l.warnings...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCaseSensitiveEnv re-reads app.env from the config file. Viper folds
// keys to lower case, which would rename the child's variables.
func (l *ConfigLoader) loadCaseSensitiveEnv(def *Definition) error {
	used := l.v.ConfigFileUsed()
	if used == "" || len(def.App.Env) == 0 {
		return nil
	}
	data, err := os.ReadFile(used)
	if err != nil {
		return nil
	}

	var raw struct {
		App struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"app"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse app.env in %s: %w", used, err)
	}
	if len(raw.App.Env) > 0 {
		def.App.Env = raw.App.Env
	}
	return nil
}

func (l *ConfigLoader) baseDir() (string, error) {
	dir := l.workDir
	if dir == "" {
		dir = os.Getenv(strings.ToUpper(AppSlug) + "_WORK_DIR")
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve work dir %q: %w", dir, err)
	}
	return abs, nil
}

func (l *ConfigLoader) buildConfig(def Definition, baseDir string) (*Config, error) {
	cfg := &Config{}

	workDir := baseDir
	if l.workDir == "" && def.WorkDir != "" {
		workDir = resolveAgainst(baseDir, def.WorkDir)
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("work dir %s is not a directory", workDir)
	}

	cfg.Core = Core{
		Debug:     def.Debug,
		LogFormat: def.LogFormat,
		WorkDir:   workDir,
	}
	if def.EnvFile != "" {
		cfg.Core.EnvFile = resolveAgainst(workDir, def.EnvFile)
	}
	if used := l.v.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			cfg.Core.ConfigFileUsed = used
		}
	}

	cfg.Build = Build{
		Command:  strings.TrimSpace(def.Build.Command),
		Include:  def.Build.Include,
		Exclude:  def.Build.Exclude,
		Debounce: l.parseDuration("build.debounce", def.Build.Debounce, defaultDebounce),
	}
	for _, dir := range def.Build.Watch {
		cfg.Build.Watch = append(cfg.Build.Watch, resolveAgainst(workDir, dir))
	}

	cfg.App = App{
		Command:   strings.TrimSpace(def.App.Command),
		Env:       def.App.Env,
		URLEnv:    def.App.URLEnv,
		PortEnv:   def.App.PortEnv,
		ModeEnv:   def.App.ModeEnv,
		Mode:      def.App.Mode,
		LogOutput: def.App.LogOutput,
	}

	cfg.Aux = Aux{
		Kind:          AuxKind(strings.ToLower(def.Aux.Kind)),
		Host:          def.Aux.Host,
		PreferredPort: def.Aux.PreferredPort,
		Root:          resolveAgainst(workDir, def.Aux.Root),
		SPA:           def.Aux.SPA,
		Command:       strings.TrimSpace(def.Aux.Command),
		ReadyPath:     def.Aux.ReadyPath,
		ReadyTimeout:  l.parseDuration("aux.readyTimeout", def.Aux.ReadyTimeout, defaultReadyTimeout),
	}
	if !strings.HasPrefix(cfg.Aux.ReadyPath, "/") {
		cfg.Aux.ReadyPath = "/" + cfg.Aux.ReadyPath
	}
	if cfg.Aux.Kind == AuxKindCommand && cfg.Aux.Command != "" && !portutil.HasPlaceholder(cfg.Aux.Command) {
		l.warnings = append(l.warnings, fmt.Sprintf("aux.command %q does not reference $PORT; it may not listen on the session port", cfg.Aux.Command))
	}

	cfg.Supervisor = Supervisor{
		Signal:       def.Supervisor.Signal,
		StopTimeout:  l.parseDuration("supervisor.stopTimeout", def.Supervisor.StopTimeout, defaultStopTimeout),
		PollInterval: l.parseDuration("supervisor.pollInterval", def.Supervisor.PollInterval, defaultPollInterval),
	}

	return cfg, nil
}

// parseDuration parses a duration string, returning fallback and adding a
// warning when the value is invalid or not positive.
func (l *ConfigLoader) parseDuration(fieldName, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		l.warnings = append(l.warnings, fmt.Sprintf("Invalid %s value: %s (using %s)", fieldName, value, fallback))
		return fallback
	}
	return d
}

func resolveAgainst(base, p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~"+string(filepath.Separator)) || p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

const (
	defaultDebounce     = 200 * time.Millisecond
	defaultReadyTimeout = 30 * time.Second
	defaultStopTimeout  = 5 * time.Second
	defaultPollInterval = 25 * time.Millisecond
)

func (l *ConfigLoader) setViperDefaultValues() {
	l.v.SetDefault("debug", false)
	l.v.SetDefault("logFormat", "text")
	l.v.SetDefault("envFile", "")

	l.v.SetDefault("build.command", "go build -o ./bin/app .")
	l.v.SetDefault("build.watch", []string{"."})
	l.v.SetDefault("build.include", []string{"**/*.go", "go.mod", "go.sum"})
	l.v.SetDefault("build.exclude", []string{".git/**", "bin/**", "node_modules/**", "**/*_test.go", ".devloop.lock"})
	l.v.SetDefault("build.debounce", defaultDebounce.String())

	l.v.SetDefault("app.command", "./bin/app")
	l.v.SetDefault("app.urlEnv", "DEVLOOP_SERVER_URL")
	l.v.SetDefault("app.portEnv", "DEVLOOP_PORT")
	l.v.SetDefault("app.modeEnv", "APP_ENV")
	l.v.SetDefault("app.mode", "development")
	l.v.SetDefault("app.logOutput", false)

	l.v.SetDefault("aux.kind", string(AuxKindStatic))
	l.v.SetDefault("aux.host", "localhost")
	l.v.SetDefault("aux.preferredPort", 3000)
	l.v.SetDefault("aux.root", "./web/dist")
	l.v.SetDefault("aux.spa", true)
	l.v.SetDefault("aux.command", "")
	l.v.SetDefault("aux.readyPath", "/")
	l.v.SetDefault("aux.readyTimeout", defaultReadyTimeout.String())

	l.v.SetDefault("supervisor.signal", "SIGTERM")
	l.v.SetDefault("supervisor.stopTimeout", defaultStopTimeout.String())
	l.v.SetDefault("supervisor.pollInterval", defaultPollInterval.String())
}

type envBinding struct {
	key string
	env string
}

var envBindings = []envBinding{
	{key: "debug", env: "DEBUG"},
	{key: "logFormat", env: "LOG_FORMAT"},
	{key: "envFile", env: "ENV_FILE"},

	{key: "build.command", env: "BUILD_COMMAND"},
	{key: "build.debounce", env: "BUILD_DEBOUNCE"},

	{key: "app.command", env: "APP_COMMAND"},
	{key: "app.mode", env: "APP_MODE"},
	{key: "app.logOutput", env: "APP_LOG_OUTPUT"},

	{key: "aux.kind", env: "AUX_KIND"},
	{key: "aux.host", env: "AUX_HOST"},
	{key: "aux.preferredPort", env: "AUX_PREFERRED_PORT"},
	{key: "aux.root", env: "AUX_ROOT"},
	{key: "aux.command", env: "AUX_COMMAND"},
	{key: "aux.readyTimeout", env: "AUX_READY_TIMEOUT"},

	{key: "supervisor.signal", env: "SUPERVISOR_SIGNAL"},
	{key: "supervisor.stopTimeout", env: "SUPERVISOR_STOP_TIMEOUT"},
}

func (l *ConfigLoader) bindEnvironmentVariables() {
	prefix := strings.ToUpper(AppSlug) + "_"
	for _, b := range envBindings {
		_ = l.v.BindEnv(b.key, prefix+b.env)
	}
}

// configureViper points viper at the explicit file, or at the first of
// <workDir>/devloop.yaml and $XDG_CONFIG_HOME/devloop/config.yaml that exists.
func (l *ConfigLoader) configureViper(baseDir string) {
	configFile := l.configFile
	if configFile == "" {
		configFile = findConfigFile(baseDir)
	}

	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		// Nothing to read; ReadInConfig reports ConfigFileNotFoundError.
		l.v.AddConfigPath(baseDir)
		l.v.SetConfigName(strings.TrimSuffix(ProjectConfigName, filepath.Ext(ProjectConfigName)))
	}
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(AppSlug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	l.v.AutomaticEnv()
}

func findConfigFile(baseDir string) string {
	local := filepath.Join(baseDir, ProjectConfigName)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if p, err := xdg.SearchConfigFile(filepath.Join(AppSlug, "config.yaml")); err == nil {
		return p
	}
	return ""
}
