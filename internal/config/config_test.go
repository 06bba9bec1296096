package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsNeedSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadConfig("missing.json")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "registry.db", cfg.Database.DSN())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.Equal(t, 24*time.Hour, cfg.Security.TokenTTL.Duration)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "config.json", `{
		"server": {"port": 9000, "read_timeout": "30s"},
		"database": {"driver": "postgres", "user": "registry", "password": "pw", "host": "db", "db_name": "credits"},
		"ledger": {"min_fee": 1000, "genesis": {"ISSUANCE_APP": 1000000}},
		"security": {"jwt_secret": "from-file", "token_ttl": 3600000000000},
		"reports": {"bucket": "stats-bucket"}
	}`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("LEDGER_MIN_FEE", "2000")
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout.Duration, "default kept")
	assert.Equal(t, uint64(2000), cfg.Ledger.MinFee)
	assert.Equal(t, uint64(1000000), cfg.Ledger.Genesis["ISSUANCE_APP"])
	assert.Equal(t, "from-file", cfg.Security.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Security.TokenTTL.Duration)
	assert.Equal(t, "postgres://registry:pw@db.internal:5432/credits?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "stats-bucket", cfg.Reports.Bucket)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "JWT_SECRET=dotenv-secret\nLOG_LEVEL=debug\n")
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Security.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("JWT_SECRET", "s")

	_, err := LoadConfig(writeFile(t, dir, "bad.json", `{"server": `))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(writeFile(t, dir, "dur.json", `{"server": {"read_timeout": "soon"}}`))
	assert.Error(t, err)

	t.Setenv("LEDGER_MIN_FEE", "-1")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "LEDGER_MIN_FEE")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Security.JWTSecret = "s"
	require.NoError(t, cfg.Validate())

	cfg.Registries.RetirementAddress = cfg.Registries.IssuanceAddress
	assert.ErrorContains(t, cfg.Validate(), "share address")

	cfg = Default()
	cfg.Security.JWTSecret = "s"
	cfg.Registries.MarketplaceAddress = ""
	assert.ErrorContains(t, cfg.Validate(), "marketplace_address")

	cfg = Default()
	cfg.Security.JWTSecret = "s"
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unsupported database driver")
}
