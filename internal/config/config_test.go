package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:              "development",
		Port:             "8800",
		JWTSecret:        "secure-secret-at-least-32-chars-long",
		DBDriver:         "postgres",
		DBPassword:       "secure-password",
		DBSSLMode:        "require",
		PrivateChatStore: "sql",
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDrivers(t *testing.T) {
	c := validConfig()
	c.DBDriver = "mysql"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.DBDriver = "sqlite"
	assert.NoError(t, c.Validate())

	c.Env = "production"
	assert.Error(t, c.Validate(), "sqlite is rejected in production")

	c = validConfig()
	c.PrivateChatStore = "mongo"
	c.MongoURI = ""
	assert.Error(t, c.Validate())

	c.MongoURI = "mongodb://localhost:27017"
	assert.NoError(t, c.Validate())
	assert.True(t, c.UsesMongoForPrivateChats())
}

func TestConfig_ProductionSecrets(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.JWTSecret = defaultJWTSecret
	assert.Error(t, c.Validate())

	c.JWTSecret = "short"
	assert.Error(t, c.Validate())

	c.JWTSecret = "secure-secret-at-least-32-chars-long"
	c.DBPassword = "password"
	assert.Error(t, c.Validate())
}

func TestConfig_ValidateTracingExporter(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		exporter    string
		expectError bool
	}{
		{"Stdout in development", "development", "stdout", false},
		{"Insecure OTLP in development", "development", "otlp-insecure", false},
		{"TLS OTLP in production", "production", "otlp", false},
		{"Insecure OTLP in production", "production", "otlp-insecure", true},
		{"Unknown exporter", "development", "jaeger", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.TracingEnabled = true
			c.TracingExporter = tt.exporter

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("RELAY_MAX_CONNECTIONS", "25")
	t.Setenv("TRACING_EXPORTER", " OTLP-Insecure ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 25, c.RelayMaxConnections)
	assert.Equal(t, "otlp-insecure", c.TracingExporter)
	assert.Equal(t, "8800", c.Port)
	assert.False(t, c.IsProduction())
}
