package ohlcvconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAppConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "application.yml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

func TestLoadAppSettings_ReadsServerDatabaseCache(t *testing.T) {
	path := writeAppConfig(t, `
server:
  port: "9090"
  readTimeout: 20
  writeTimeout: 20
database:
  masterDatasource:
    user: ohlcv
    password: secret
    host: localhost:5432
    name: ohlcv_db
  maxIdleConnections: 5
  maxOpenConnections: 20
cache:
  redis:
    host: localhost
    port: "6379"
    database: 0
  inmem:
    ttl: 30s
    cleanupttl: 1m
`)
	t.Setenv(envAppConfigPath, path)

	settings, err := LoadAppSettings()
	require.NoError(t, err)

	assert.Equal(t, "9090", settings.Server.Port)
	assert.Equal(t, 20, settings.Server.ReadTimeout)
	assert.Equal(t, "ohlcv", settings.Database.MasterDatasource.User)
	assert.Equal(t, "localhost:5432", settings.Database.MasterDatasource.Host)
	assert.Equal(t, "localhost", settings.Cache.Redis.Host)
	assert.Equal(t, "6379", settings.Cache.Redis.Port)
}

func TestLoadAppSettings_DefaultsApplyWhenAbsent(t *testing.T) {
	path := writeAppConfig(t, `
database:
  masterDatasource:
    user: ohlcv
    host: localhost:5432
    name: ohlcv_db
`)
	t.Setenv(envAppConfigPath, path)

	settings, err := LoadAppSettings()
	require.NoError(t, err)

	assert.Equal(t, "8090", settings.Server.Port)
	assert.Equal(t, 15, settings.Server.ReadTimeout)
	assert.True(t, settings.Database.DisableTLS)
}

func TestAppSettings_DatabaseConfig_MapsFields(t *testing.T) {
	path := writeAppConfig(t, `
database:
  masterDatasource:
    user: ohlcv
    password: secret
    host: db.internal:5432
    name: ohlcv_db
  maxIdleConnections: 3
  maxOpenConnections: 10
  disableTLS: false
`)
	t.Setenv(envAppConfigPath, path)

	settings, err := LoadAppSettings()
	require.NoError(t, err)

	dbConfig, err := settings.DatabaseConfig()
	require.NoError(t, err)

	assert.Equal(t, "ohlcv", dbConfig.MasterDataSource.User)
	assert.Equal(t, "db.internal:5432", dbConfig.MasterDataSource.Host)
	assert.Equal(t, "ohlcv_db", dbConfig.MasterDataSource.DBName)
	assert.Equal(t, 3, dbConfig.MaxIdleConnections)
	assert.Equal(t, 10, dbConfig.MaxOpenConnections)
	assert.False(t, dbConfig.DisableTLS)
}

func TestLoadAppSettings_MissingFileReturnsError(t *testing.T) {
	t.Setenv(envAppConfigPath, filepath.Join(t.TempDir(), "missing.yml"))
	_, err := LoadAppSettings()
	assert.Error(t, err)
}
