package models

import (
	"fmt"
	"time"
)

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
	ClickHouse DatabaseType = "clickhouse"
	Redis      DatabaseType = "redis"
)

// SSLMode vocabularies accepted by each backend. PostgreSQL and MySQL use
// different mode names, so validation is per-type.
var (
	postgresSSLModes = map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	mysqlSSLModes = map[string]bool{
		"false": true, "true": true, "skip-verify": true, "preferred": true,
	}
)

// SSLConfig holds the TLS material for a connection. Cert/Key/RootCert are
// filesystem paths resolved at load time, never echoed back to callers.
type SSLConfig struct {
	Mode     string `yaml:"mode" json:"mode"`
	Cert     string `yaml:"cert,omitempty" json:"-"`
	Key      string `yaml:"key,omitempty" json:"-"`
	RootCert string `yaml:"root_cert,omitempty" json:"-"`
}

// PoolConfig bounds the live handles kept per connection name.
type PoolConfig struct {
	MinSize     int           `yaml:"min_size,omitempty" json:"min_size,omitzero"`
	MaxSize     int           `yaml:"max_size,omitempty" json:"max_size,omitzero"`
	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitzero"`
	Recycle     time.Duration `yaml:"recycle,omitempty" json:"recycle,omitzero"`
}

// TablePermission lists the write operations allowed on one table. Operations
// are INSERT, UPDATE, DELETE or ALL.
type TablePermission struct {
	Operations []string `yaml:"operations" json:"operations"`
}

// WritePermissions is the opt-in write policy for a writable connection.
// DefaultPolicy applies to tables absent from the Tables map; table names in
// the map may contain * and ? glob wildcards.
type WritePermissions struct {
	DefaultPolicy string                     `yaml:"default_policy,omitempty" json:"default_policy,omitzero"`
	Tables        map[string]TablePermission `yaml:"tables,omitempty" json:"tables,omitempty"`
}

const (
	PolicyReadOnly = "read_only"
	PolicyAllowAll = "allow_all"
)

// ConnectionConfig is the validated definition of one named connection.
// Immutable after load; the Name field is injected from the YAML map key.
type ConnectionConfig struct {
	Name     string       `yaml:"-" json:"name"`
	Type     DatabaseType `yaml:"type" json:"type"`
	Host     string       `yaml:"host,omitempty" json:"host,omitzero"`
	Port     int          `yaml:"port,omitempty" json:"port,omitzero"`
	Path     string       `yaml:"path,omitempty" json:"-"`
	Database string       `yaml:"database,omitempty" json:"database,omitzero"`
	Username string       `yaml:"username,omitempty" json:"username,omitzero"`
	Password string       `yaml:"password,omitempty" json:"-"`
	Charset  string       `yaml:"charset,omitempty" json:"charset,omitzero"`

	SSL  *SSLConfig `yaml:"ssl,omitempty" json:"ssl,omitempty"`
	Pool PoolConfig `yaml:"pool,omitempty" json:"pool"`

	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitzero"`
	QueryTimeout   time.Duration `yaml:"query_timeout,omitempty" json:"query_timeout,omitzero"`

	MaxRows int `yaml:"max_rows,omitempty" json:"max_rows,omitzero"`

	Writable         bool              `yaml:"writable,omitempty" json:"writable"`
	WritePermissions *WritePermissions `yaml:"write_permissions,omitempty" json:"write_permissions,omitempty"`
}

// Defaults applied by ApplyDefaults when the YAML leaves a field unset.
const (
	DefaultPoolMaxSize     = 5
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultRecycle         = 30 * time.Minute
	DefaultConnectTimeout  = 10 * time.Second
	DefaultQueryTimeout    = 30 * time.Second
	DefaultMaxRows         = 10000
	DefaultSQLitePort      = 0
	DefaultMySQLPort       = 3306
	DefaultPostgresPort    = 5432
	DefaultClickHousePort  = 9000
	DefaultRedisPort       = 6379
	DefaultMySQLCharset    = "utf8mb4"
	DefaultPostgresSSLMode = "prefer"
)

// ApplyDefaults fills unset fields in place. Called once at config load,
// before the config becomes immutable.
func (c *ConnectionConfig) ApplyDefaults() {
	if c.Pool.MaxSize <= 0 {
		c.Pool.MaxSize = DefaultPoolMaxSize
	}
	if c.Pool.MinSize < 0 {
		c.Pool.MinSize = 0
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		c.Pool.MinSize = c.Pool.MaxSize
	}
	if c.Pool.IdleTimeout <= 0 {
		c.Pool.IdleTimeout = DefaultIdleTimeout
	}
	if c.Pool.Recycle <= 0 {
		c.Pool.Recycle = DefaultRecycle
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.Port == 0 {
		switch c.Type {
		case MySQL:
			c.Port = DefaultMySQLPort
		case PostgreSQL:
			c.Port = DefaultPostgresPort
		case ClickHouse:
			c.Port = DefaultClickHousePort
		case Redis:
			c.Port = DefaultRedisPort
		}
	}
	if c.Type == MySQL && c.Charset == "" {
		c.Charset = DefaultMySQLCharset
	}
	if c.Writable && c.WritePermissions != nil && c.WritePermissions.DefaultPolicy == "" {
		c.WritePermissions.DefaultPolicy = PolicyReadOnly
	}
}

// Validate checks the per-type required fields and the SSL mode vocabulary.
func (c *ConnectionConfig) Validate() error {
	switch c.Type {
	case SQLite:
		if c.Path == "" {
			return fmt.Errorf("connection %q: sqlite requires a path", c.Name)
		}
	case MySQL, PostgreSQL, ClickHouse:
		if c.Host == "" {
			return fmt.Errorf("connection %q: %s requires a host", c.Name, c.Type)
		}
		if c.Database == "" {
			return fmt.Errorf("connection %q: %s requires a database", c.Name, c.Type)
		}
	case Redis:
		if c.Host == "" {
			return fmt.Errorf("connection %q: redis requires a host", c.Name)
		}
	default:
		return fmt.Errorf("connection %q: unsupported database type: %s", c.Name, c.Type)
	}

	if c.SSL != nil && c.SSL.Mode != "" {
		switch c.Type {
		case PostgreSQL:
			if !postgresSSLModes[c.SSL.Mode] {
				return fmt.Errorf("connection %q: invalid postgres ssl mode %q", c.Name, c.SSL.Mode)
			}
		case MySQL:
			if !mysqlSSLModes[c.SSL.Mode] {
				return fmt.Errorf("connection %q: invalid mysql ssl mode %q", c.Name, c.SSL.Mode)
			}
		case SQLite:
			return fmt.Errorf("connection %q: sqlite does not support ssl", c.Name)
		}
	}

	// Cert and key must travel together.
	if c.SSL != nil && (c.SSL.Cert == "") != (c.SSL.Key == "") {
		return fmt.Errorf("connection %q: ssl cert and key must both be set", c.Name)
	}

	if c.WritePermissions != nil {
		switch c.WritePermissions.DefaultPolicy {
		case "", PolicyReadOnly, PolicyAllowAll:
		default:
			return fmt.Errorf("connection %q: invalid default_policy %q", c.Name, c.WritePermissions.DefaultPolicy)
		}
		for table, perm := range c.WritePermissions.Tables {
			for _, op := range perm.Operations {
				switch op {
				case "INSERT", "UPDATE", "DELETE", "ALL":
				default:
					return fmt.Errorf("connection %q: table %q: invalid operation %q", c.Name, table, op)
				}
			}
		}
	}

	return nil
}
