// classifier/cmd/classifierd/classifierd_main_test.go

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/classifier/pkg/logging"
	"rgehrsitz/classifier/pkg/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseConfig(t *testing.T) {
	configFile := writeFile(t, "classifier_config.json", `{
		"server": {"port": 8088},
		"categories": {
			"file": "rules.properties",
			"source": "Redis",
			"default_field": "body"
		},
		"watcher": {"settle_interval_ms": 100},
		"logging": {"level": "debug", "output": "file"},
		"redis": {
			"address": "localhost:6380",
			"password": "password",
			"database": 1,
			"key": "rules",
			"channel": "rules_changed"
		},
		"metrics": {"enabled": false},
		"dashboard": {"enabled": false, "update_interval": 15}
	}`)

	config, err := parseConfig([]string{"classifierd", "--config", configFile})
	require.NoError(t, err)

	assert.Equal(t, 8088, config.Port)
	assert.Equal(t, "rules.properties", config.CategoriesFile)
	assert.Equal(t, "redis", config.SourceKind)
	assert.Equal(t, "body", config.DefaultField)
	assert.Equal(t, 100*time.Millisecond, config.SettleInterval)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "file", config.LogDestination)
	assert.Equal(t, "localhost:6380", config.RedisAddress)
	assert.Equal(t, "password", config.RedisPassword)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, "rules", config.RedisKey)
	assert.Equal(t, "rules_changed", config.RedisChannel)
	assert.False(t, config.MetricsEnabled)
	assert.False(t, config.DashboardEnabled)
	assert.Equal(t, 15*time.Second, config.DashboardInterval)
}

func TestParseConfigDefaults(t *testing.T) {
	config, err := parseConfig([]string{"classifierd"})
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Port)
	assert.Equal(t, "categories.properties", config.CategoriesFile)
	assert.Equal(t, "file", config.SourceKind)
	assert.Equal(t, "text", config.DefaultField)
	assert.Equal(t, 25*time.Millisecond, config.SettleInterval)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, "console", config.LogDestination)
	assert.Equal(t, store.DefaultRedisKey, config.RedisKey)
	assert.Equal(t, store.DefaultRedisChannel, config.RedisChannel)
	assert.True(t, config.MetricsEnabled)
	assert.True(t, config.DashboardEnabled)
	assert.Equal(t, 5*time.Second, config.DashboardInterval)
}

func TestParseConfigPositionalArgs(t *testing.T) {
	configFile := writeFile(t, "classifier_config.json", `{"categories": {"source": "redis"}}`)

	config, err := parseConfig([]string{"classifierd", "--config", configFile, "8081", "other.properties"})
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Port)
	assert.Equal(t, "other.properties", config.CategoriesFile)
	assert.Equal(t, "file", config.SourceKind)
}

func TestParseConfigIgnoresSinglePositionalArg(t *testing.T) {
	config, err := parseConfig([]string{"classifierd", "8081"})
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Port)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		args   []string
	}{
		{name: "bad port", args: []string{"8o8o", "rules.properties"}},
		{name: "port out of range", config: `{"server": {"port": 70000}}`},
		{name: "unknown source", config: `{"categories": {"source": "ftp"}}`},
		{name: "empty default field", config: `{"categories": {"default_field": ""}}`},
		{name: "negative settle", config: `{"watcher": {"settle_interval_ms": -1}}`},
		{name: "malformed config", config: `{"server": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"classifierd"}
			if tt.config != "" {
				args = append(args, "--config", writeFile(t, "classifier_config.json", tt.config))
			}
			args = append(args, tt.args...)

			_, err := parseConfig(args)

			require.Error(t, err)
			assert.True(t, logging.IsType(err, logging.ErrorTypeConfig), err.Error())
		})
	}
}

func TestParseConfigMissingFile(t *testing.T) {
	_, err := parseConfig([]string{"classifierd", "--config", filepath.Join(t.TempDir(), "absent.json")})
	assert.Error(t, err)
}

func TestSetupDependencies(t *testing.T) {
	config := &Config{
		CategoriesFile:    writeFile(t, "categories.properties", "alpha=shabbadoo\n"),
		SourceKind:        sourceFile,
		DefaultField:      "text",
		MetricsEnabled:    true,
		DashboardEnabled:  true,
		DashboardInterval: time.Second,
	}

	deps, err := setupDependencies(context.Background(), config, &RealSourceFactory{})
	require.NoError(t, err)

	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.Engine)
	assert.NotNil(t, deps.Watcher)
	assert.NotNil(t, deps.Server)
	assert.NotNil(t, deps.Dashboard)
	assert.NotNil(t, deps.Registry)
	assert.Equal(t, config.CategoriesFile, deps.Source.Name())

	require.NoError(t, deps.Store.Reload(context.Background()))
	assert.Equal(t, []string{"alpha"}, deps.Engine.Classify(map[string]string{"text": "shabbadoo"}))

	families, err := deps.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "classifier_store_reloads_total")
	assert.Contains(t, names, "classifier_engine_evaluations_total")
}

func TestSetupDependenciesWithoutOptionalParts(t *testing.T) {
	config := &Config{
		CategoriesFile: "categories.properties",
		SourceKind:     sourceFile,
		DefaultField:   "text",
	}

	deps, err := setupDependencies(context.Background(), config, &RealSourceFactory{})
	require.NoError(t, err)

	assert.Nil(t, deps.Registry)
	assert.Nil(t, deps.Dashboard)
}

func TestSetupDependenciesRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	mr.Set("rules", "alpha=shabbadoo\n")

	config := &Config{
		SourceKind:   sourceRedis,
		DefaultField: "text",
		RedisAddress: mr.Addr(),
		RedisKey:     "rules",
	}

	deps, err := setupDependencies(context.Background(), config, &RealSourceFactory{})
	require.NoError(t, err)
	defer deps.Source.(*store.RedisSource).Close()

	require.NoError(t, deps.Store.Reload(context.Background()))
	assert.Equal(t, []string{"alpha"}, deps.Store.Snapshot().Names())
}

func TestSetupDependenciesRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	config := &Config{SourceKind: sourceRedis, DefaultField: "text", RedisAddress: addr}

	_, err = setupDependencies(context.Background(), config, &RealSourceFactory{})
	require.Error(t, err)
	assert.True(t, logging.IsType(err, logging.ErrorTypeStore))
}

func TestRunService(t *testing.T) {
	path := writeFile(t, "categories.properties", "alpha=shabbadoo\n")
	config := &Config{
		Port:              0,
		CategoriesFile:    path,
		SourceKind:        sourceFile,
		DefaultField:      "text",
		DashboardEnabled:  true,
		DashboardInterval: time.Hour,
	}
	deps, err := setupDependencies(context.Background(), config, &RealSourceFactory{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runService(ctx, deps, config)
	}()

	assert.Eventually(t, func() bool {
		return deps.Store.Snapshot().Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runService did not return after cancellation")
	}

	select {
	case <-deps.Watcher.Done():
	default:
		t.Fatal("watcher still running after shutdown")
	}
}

func TestRun(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	mr.Set(store.DefaultRedisKey, "alpha=shabbadoo\n")

	configFile := writeFile(t, "classifier_config.json", fmt.Sprintf(`{
		"server": {"port": 0},
		"categories": {"source": "redis"},
		"logging": {"level": "info", "output": "json"},
		"redis": {"address": "%s"}
	}`, mr.Addr()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = run(ctx, []string{"classifierd", "--config", configFile}, &RealSourceFactory{})
	assert.NoError(t, err)
}
