package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	logOutput  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath sets the file the configuration was loaded from. It is
// watched for changes when app.watch_config is on.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithLogOutput redirects the JSON log stream (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
