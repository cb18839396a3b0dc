package configx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/marcodd23/go-pool-core/pkg/validator"
	"github.com/spf13/viper"
)

const defaultConfigBaseName = "property"

// Engine defaults, applied by NormalizeEngineConfig when a key is absent.
const (
	DefaultPoolClass      = "queue"
	DefaultPoolSize       = 5
	DefaultMaxOverflow    = 10
	DefaultTimeoutSeconds = 30
	DefaultStrategy       = "plain"
	DefaultUseAffinity    = true
)

func LoadConfigForEnv(config Config) error {
	return ReadConfiguration(getEnvPropertyFileName(defaultConfigBaseName), config)
}

// LoadConfigFromPathForEnv - search the property-<ENV> properties in the given search path (for ex. "./config" )
func LoadConfigFromPathForEnv(searchPath string, config Config) error {
	if searchPath == "" {
		return LoadConfigForEnv(config)
	}

	searchPath = strings.TrimSuffix(searchPath, "/")

	return ReadConfiguration(getEnvPropertyFileName(fmt.Sprintf("%s/%s", searchPath, defaultConfigBaseName)), config)
}

// ReadConfiguration reads the configuration from the file and environment variables
func ReadConfiguration(configFilePath string, config Config) error {
	log.Println("config filepath: ", configFilePath)

	viper.SetConfigFile(configFilePath) // Specify the file to read
	viper.SetConfigType("yaml")         // Specify the config file type (yaml)
	viper.AutomaticEnv()                // Enable automatic environment variable binding

	// Replace dots in keys with underscores in environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Attempt to read the configuration file
	if err := viper.ReadInConfig(); err == nil {
		log.Printf("Reading configuration from config file: %s\nSet environment variables will OVERRIDE these values, as the environment takes precedent.", configFilePath)
		log.Printf("Please do not mix a configuration file and environment variables! Your variables may not get read correctly.")
	} else {
		log.Println("No configuration file found, reading configuration from environment variables.")
	}

	// Unmarshal the configuration into the provided struct
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("unable to decode into config struct, %v", err)
	}

	return nil
}

// NormalizeEngineConfig - fill in defaults for absent engine keys and validate
// the result. Returns the normalized copy, never mutating the input.
func NormalizeEngineConfig(cfg *EngineConfig) (EngineConfig, error) {
	var normalized EngineConfig
	if cfg != nil {
		normalized = *cfg
	}

	if normalized.PoolClass == "" {
		normalized.PoolClass = DefaultPoolClass
	}

	if normalized.PoolSize == 0 {
		normalized.PoolSize = DefaultPoolSize
	}

	if normalized.MaxOverflow == nil {
		overflow := DefaultMaxOverflow
		normalized.MaxOverflow = &overflow
	}

	if normalized.TimeoutSeconds == 0 {
		normalized.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if normalized.Strategy == "" {
		normalized.Strategy = DefaultStrategy
	}

	if normalized.PoolClass == "pinned" {
		disabled := false
		normalized.UseAffinity = &disabled
	} else if normalized.UseAffinity == nil {
		enabled := DefaultUseAffinity
		normalized.UseAffinity = &enabled
	}

	if valErrors := validator.NewValidator().ValidateStruct(normalized); len(valErrors) > 0 {
		return EngineConfig{}, validator.NewValidationError(valErrors)
	}

	return normalized, nil
}

// Timeout - acquire timeout as a duration.
func (ec EngineConfig) Timeout() time.Duration {
	return time.Duration(ec.TimeoutSeconds) * time.Second
}

func getEnvPropertyFileName(baseFileName string) string {
	env := strings.ToUpper(os.Getenv("ENVIRONMENT"))
	if !checkIfLocalEnv(env) {
		return fmt.Sprintf("%s-%s.yaml", baseFileName, strings.ToLower(env))
	}

	return fmt.Sprintf("%s.yaml", baseFileName)
}

func checkIfLocalEnv(env string) bool {
	if env == strings.ToUpper("DEV") || env == strings.ToUpper("STAGE") || env == strings.ToUpper("PROD") {
		return false
	}

	return true
}
