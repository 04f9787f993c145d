package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tagindex/internal/domain"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg *Config)
		wantErr error
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, BackendMemory, cfg.Backend)
				require.Equal(t, domain.RetentionPolicy(0), cfg.Retention)
				require.Empty(t, cfg.Redis.Nodes)
				require.Equal(t, "item:", cfg.Redis.ItemPrefix)
				require.Equal(t, "tag:", cfg.Redis.TagPrefix)
			},
		},
		{
			name: "redis node list keeps order",
			env: map[string]string{
				"TAGINDEX_BACKEND": " Redis ",
				"REDIS_NODES":      "redis://10.0.0.1:6379, 10.0.0.2:6379,,",
				"TAG_RETENTION":    "retain-empty",
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, BackendRedis, cfg.Backend)
				require.Equal(t, []string{"redis://10.0.0.1:6379", "10.0.0.2:6379"}, cfg.Redis.Nodes)
				require.Equal(t, domain.RetainEmpty, cfg.Retention)
			},
		},
		{
			name: "postgres and dynamodb settings",
			env: map[string]string{
				"DATABASE_URL":                  "postgres://localhost/tags",
				"DATABASE_AUTO_MIGRATE":         "true",
				"DYNAMODB_TABLE":                "tags",
				"AWS_REGION":                    "eu-west-1",
				"DYNAMODB_INSECURE_SKIP_VERIFY": "1",
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "postgres://localhost/tags", cfg.Postgres.DBUrl)
				require.True(t, cfg.Postgres.AutoMigrate)
				require.Equal(t, "tags", cfg.DynamoDB.Table)
				require.Equal(t, "eu-west-1", cfg.DynamoDB.Region)
				require.True(t, cfg.DynamoDB.InsecureSkipVerify)
			},
		},
		{
			name: "shared namespace clears prefixes",
			env: map[string]string{
				"REDIS_SHARED_NAMESPACE": "true",
				"REDIS_ITEM_PREFIX":      "",
				"REDIS_TAG_PREFIX":       "",
			},
			check: func(t *testing.T, cfg *Config) {
				require.True(t, cfg.Redis.SharedNamespace)
				require.Empty(t, cfg.Redis.ItemPrefix)
				require.Empty(t, cfg.Redis.TagPrefix)
			},
		},
		{
			name:    "bad shared namespace flag",
			env:     map[string]string{"REDIS_SHARED_NAMESPACE": "maybe"},
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "unknown retention",
			env:     map[string]string{"TAG_RETENTION": "forever"},
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "bad bool",
			env:     map[string]string{"DATABASE_AUTO_MIGRATE": "sometimes"},
			wantErr: domain.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv("development", envMap(tt.env))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "development", cfg.Environment)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	for _, k := range []string{"GO_ENV", "TAGINDEX_BACKEND", "REDIS_NODES"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("TAGINDEX_BACKEND=redis\nREDIS_NODES=127.0.0.1:6379\n"), 0o600))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, BackendRedis, cfg.Backend)
	require.Equal(t, []string{"127.0.0.1:6379"}, cfg.Redis.Nodes)
}

func TestLoad_ProductionSkipsDotEnv(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("TAGINDEX_BACKEND", "")
	require.NoError(t, os.Unsetenv("TAGINDEX_BACKEND"))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TAGINDEX_BACKEND=redis\n"), 0o600))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, BackendMemory, cfg.Backend)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{Environment: "production", Backend: BackendRedis, LogLevel: "warn"})

	logger.Info("hidden")
	require.Zero(t, buf.Len())

	logger.Warn("shown", "tag", "red")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"backend":"redis"`)
	require.Contains(t, buf.String(), `"tag":"red"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel("debug").String())
	require.Equal(t, "ERROR", parseLevel("ERROR").String())
	require.Equal(t, "INFO", parseLevel("").String())
	require.Equal(t, "INFO", parseLevel("verbose").String())
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
