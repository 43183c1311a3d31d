package config

// Definition is the raw shape of the configuration file. Each field maps to a
// key in devloop.yaml; durations stay strings until the loader parses them.
type Definition struct {
	// Debug toggles debug logging with source locations.
	Debug bool `mapstructure:"debug"`

	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"logFormat"`

	// WorkDir is the project root. Build and child commands run here and
	// relative paths below are resolved against it.
	WorkDir string `mapstructure:"workDir"`

	// EnvFile is an optional dotenv file merged into the child environment.
	EnvFile string `mapstructure:"envFile"`

	Build      BuildDef      `mapstructure:"build"`
	App        AppDef        `mapstructure:"app"`
	Aux        AuxDef        `mapstructure:"aux"`
	Supervisor SupervisorDef `mapstructure:"supervisor"`
}

// BuildDef configures the incremental compiler.
type BuildDef struct {
	Command  string   `mapstructure:"command"`
	Watch    []string `mapstructure:"watch"`
	Include  []string `mapstructure:"include"`
	Exclude  []string `mapstructure:"exclude"`
	Debounce string   `mapstructure:"debounce"`
}

// AppDef configures the supervised child process.
type AppDef struct {
	Command string            `mapstructure:"command"`
	Env     map[string]string `mapstructure:"env"`

	// URLEnv receives http://host:port of the auxiliary server.
	URLEnv string `mapstructure:"urlEnv"`
	// PortEnv receives the bare auxiliary port.
	PortEnv string `mapstructure:"portEnv"`
	// ModeEnv receives Mode.
	ModeEnv string `mapstructure:"modeEnv"`
	Mode    string `mapstructure:"mode"`

	// LogOutput pipes child stdout/stderr through the logger.
	LogOutput bool `mapstructure:"logOutput"`
}

// AuxDef configures the auxiliary server.
type AuxDef struct {
	// Kind is "static", "command" or "none".
	Kind          string `mapstructure:"kind"`
	Host          string `mapstructure:"host"`
	PreferredPort int    `mapstructure:"preferredPort"`
	Root          string `mapstructure:"root"`
	SPA           bool   `mapstructure:"spa"`
	Command       string `mapstructure:"command"`
	ReadyPath     string `mapstructure:"readyPath"`
	ReadyTimeout  string `mapstructure:"readyTimeout"`
}

// SupervisorDef configures child termination.
type SupervisorDef struct {
	Signal       string `mapstructure:"signal"`
	StopTimeout  string `mapstructure:"stopTimeout"`
	PollInterval string `mapstructure:"pollInterval"`
}
