package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	mcpMode bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCPMode runs the application as an MCP server over stdio instead
// of starting the HTTP server and file watcher.
func WithMCPMode() Option {
	return func(a *application) {
		a.mcpMode = true
	}
}
