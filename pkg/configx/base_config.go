package configx

// Config - config interface.
type Config interface {
	GetServiceName() string
	GetVersion() string
	GetEnvironment() string
	GetServerConfig() *ServerConfig
	GetLoggingConfig() *LoggingConfig
	GetEngineConfig() *EngineConfig
	GetDatabaseConfig() *DatabaseConfig
	IsLocalEnvironment() bool
}

// BaseConfig - app config struct.
// This struct represents the base configuration for the application and is expected to be in the following YAML format:
/*
name: "TestApp"
environment: "development"
version: "1.0"
logging:
  level: "debug"
server:
  port: "8080"
  concurrency: 10
  disableStartupMsg: false
engine:
  poolClass: "queue"
  poolSize: 5
  maxOverflow: 10
  timeoutSeconds: 30
  strategy: "plain"
  echo: false
database:
  scheme: "postgres"
  host: "localhost"
  port: 5432
  dbName: "main-db"
  user: "postgres"
  password: "password"
*/
type BaseConfig struct {
	Name        string          `mapstructure:"name"`
	Environment string          `mapstructure:"environment"`
	Version     string          `mapstructure:"version"`
	Logging     *LoggingConfig  `mapstructure:"logging"`
	Server      *ServerConfig   `mapstructure:"server"`
	Engine      *EngineConfig   `mapstructure:"engine"`
	Database    *DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Port                  string `mapstructure:"port"`
	Concurrency           int    `mapstructure:"concurrency"`
	DisableStartupMessage bool   `mapstructure:"disableStartupMsg"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// EngineConfig - pooling and execution-strategy configuration.
//
// MaxOverflow is a pointer so an absent key can be told apart from an
// explicit 0 or -1 (-1 means no upper bound on concurrent checkouts).
// UseAffinity is a pointer because its default depends on the pool class:
// true for the queue pool, forced false for the pinned pool, which already
// keys every handle by owner.
type EngineConfig struct {
	PoolClass      string `mapstructure:"poolClass" validate:"omitempty,oneof=queue pinned"`
	PoolSize       int    `mapstructure:"poolSize" validate:"omitempty,min=1"`
	MaxOverflow    *int   `mapstructure:"maxOverflow" validate:"omitempty,min=-1"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds" validate:"omitempty,min=1"`
	Strategy       string `mapstructure:"strategy" validate:"omitempty,oneof=plain contextual"`
	UseAffinity    *bool  `mapstructure:"useAffinity"`
	Echo           bool   `mapstructure:"echo"`
}

// DatabaseConfig - connection parameters of the target resource. The engine
// does not interpret these beyond building the canonical pool key and handing
// them to the handle factory.
type DatabaseConfig struct {
	Scheme   string            `mapstructure:"scheme"`
	Host     string            `mapstructure:"host" validate:"required"`
	Port     int32             `mapstructure:"port"`
	DBName   string            `mapstructure:"dbName" validate:"required"`
	User     string            `mapstructure:"user" validate:"required"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

func (cfg BaseConfig) GetServiceName() string {
	return cfg.Name
}

func (cfg BaseConfig) GetVersion() string {
	return cfg.Version
}

func (cfg BaseConfig) GetEnvironment() string {
	return cfg.Environment
}

func (cfg BaseConfig) IsLocalEnvironment() bool {
	return checkIfLocalEnv(cfg.Environment)
}

func (cfg BaseConfig) GetServerConfig() *ServerConfig {
	return cfg.Server
}

func (cfg BaseConfig) GetLoggingConfig() *LoggingConfig {
	return cfg.Logging
}

func (cfg BaseConfig) GetEngineConfig() *EngineConfig {
	return cfg.Engine
}

func (cfg BaseConfig) GetDatabaseConfig() *DatabaseConfig {
	return cfg.Database
}
