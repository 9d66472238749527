package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config

	// configPath, when set, enables hot reload of pipeline thresholds
	// whenever the file changes on disk.
	configPath string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath records where the configuration was loaded from so the
// threshold watcher can pick up edits at runtime.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}
