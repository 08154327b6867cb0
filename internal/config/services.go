package config

// Runtime environment tags. They select which set of service endpoints the
// process talks to; explicit overrides in the services block win.
const (
	EnvLocal      = "local"
	EnvProduction = "production"
)

type serviceEndpoints struct {
	store string
	redis string
	loki  string
}

var serviceURLs = map[string]serviceEndpoints{
	EnvLocal: {
		store: "http://localhost:8000",
		redis: "localhost:6379",
		loki:  "http://localhost:3100",
	},
	EnvProduction: {
		store: "http://emily-database-handler:8000",
		redis: "redis:6379",
		loki:  "http://loki:3100",
	},
}

// StoreURL returns the news store base URL for the configured environment.
func (c *Config) StoreURL() string {
	if c.Services.StoreURL != "" {
		return c.Services.StoreURL
	}
	return serviceURLs[c.Environment].store
}

// RedisAddr returns the Redis host:port for the configured environment.
func (c *Config) RedisAddr() string {
	if c.Services.RedisAddr != "" {
		return c.Services.RedisAddr
	}
	return serviceURLs[c.Environment].redis
}

// LokiURL returns the Loki base URL for the configured environment.
func (c *Config) LokiURL() string {
	if c.Services.LokiURL != "" {
		return c.Services.LokiURL
	}
	return serviceURLs[c.Environment].loki
}
