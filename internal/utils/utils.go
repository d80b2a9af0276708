package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("WAREHOUSE_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	// Results go to stdout, so keep the log on stderr
	logger.SetOutput(os.Stderr)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// RequiredEnvVars returns the variables a driver needs when no flags are given
func RequiredEnvVars(driver string) []string {
	if strings.EqualFold(driver, connector.MySQL.Name) {
		return []string{"MYSQL_HOST", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE"}
	}
	return []string{"SNOWFLAKE_ACCOUNT", "SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_DATABASE"}
}

// LoadEnvironmentVariables loads environment variables from .env file and
// reports whether every variable the driver needs is set
func LoadEnvironmentVariables(envFile, driver string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Debugf("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	if driver == "" {
		driver = os.Getenv("WAREHOUSE_DRIVER")
	}

	var missingVars []string
	for _, v := range RequiredEnvVars(driver) {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Debugf("Missing environment variables: %s", strings.Join(missingVars, ", "))
		logger.Debug("These can be provided via command line arguments, a config file, environment variables, or a .env file")
		return false
	}

	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 || !isWarehouseVar(parts[0]) {
				continue
			}
			if strings.HasSuffix(parts[0], "_PASSWORD") {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

func isWarehouseVar(name string) bool {
	for _, prefix := range []string{"SNOWFLAKE_", "MYSQL_", "WAREHOUSE_"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ValidateConnectionParams validates the resolved connection parameters for the configured driver
func ValidateConnectionParams(cfg connector.Config, logger *logrus.Logger) bool {
	isMySQL := strings.EqualFold(cfg.Driver, connector.MySQL.Name)

	if isMySQL && cfg.Host == "" {
		logger.Error("Database host is required")
		return false
	}

	if !isMySQL && cfg.Account == "" {
		logger.Error("Snowflake account is required")
		return false
	}

	if cfg.User == "" {
		logger.Error("Database user is required")
		return false
	}

	if cfg.Password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if cfg.Database == "" {
		logger.Error("Database name is required")
		return false
	}

	if isMySQL {
		if _, err := strconv.Atoi(cfg.Port); err != nil {
			logger.Errorf("Invalid port number: %s", cfg.Port)
			return false
		}
	}

	return true
}
