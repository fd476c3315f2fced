package config

import "fmt"

// DatabaseConfig holds configuration for the PostgreSQL connection.
type DatabaseConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host,omitempty"`

	// Port is the database server port.
	Port int `yaml:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database"`

	// Username for database authentication.
	Username string `yaml:"username,omitempty"`

	// Password for database authentication. Supports ${VAR} expansion.
	Password string `yaml:"password,omitempty"`

	// SSLMode for the connection.
	SSLMode string `yaml:"ssl_mode,omitempty"`

	// MaxConns is the maximum number of open connections.
	MaxConns int `yaml:"max_conns,omitempty"`

	// MaxIdle is the maximum number of idle connections.
	MaxIdle int `yaml:"max_idle,omitempty"`
}

// SetDefaults applies default values to the database config.
func (c *DatabaseConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be non-negative")
	}
	if c.MaxIdle < 0 {
		return fmt.Errorf("max_idle must be non-negative")
	}
	return nil
}

// DSN returns the data source name (connection string) for the database.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
	if c.Username != "" {
		dsn += fmt.Sprintf(" user=%s", c.Username)
	}
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}
