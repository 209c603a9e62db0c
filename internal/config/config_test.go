package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader(env map[string]string) *HCLLoader {
	return &HCLLoader{lookupEnv: func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}}
}

func ptr[T any](v T) *T { return &v }

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.ExtendedAncestry)
	assert.False(t, cfg.VerboseDiagnostics)
	assert.Empty(t, cfg.OutputPath)
	require.NoError(t, cfg.Validate())
}

func TestHCLLoader_FullFile(t *testing.T) {
	src := `
output_path      = "/tmp/graph.msgpack"
format           = "msgpack"
log_level        = "debug"
log_format       = "json"
healthcheck_port = 8080
workers          = 8

options {
  extended_ancestry   = true
  verbose_diagnostics = true
}

ingest {
  address = "127.0.0.1:5000"
  path    = "/events/"
}
`
	cfg, err := testLoader(nil).LoadBytes([]byte(src), "full.hcl")
	require.NoError(t, err)

	assert.Equal(t, &Overrides{
		OutputPath:         ptr("/tmp/graph.msgpack"),
		Format:             ptr("msgpack"),
		ExtendedAncestry:   ptr(true),
		VerboseDiagnostics: ptr(true),
		LogLevel:           ptr("debug"),
		LogFormat:          ptr("json"),
		IngestAddress:      ptr("127.0.0.1:5000"),
		IngestPath:         ptr("/events/"),
		HealthcheckPort:    ptr(8080),
		Workers:            ptr(8),
	}, cfg)
}

func TestHCLLoader_AbsentValuesStayUnset(t *testing.T) {
	cfg, err := testLoader(nil).LoadBytes([]byte("options {\n  verbose_diagnostics = false\n}\n"), "partial.hcl")
	require.NoError(t, err)
	assert.Equal(t, &Overrides{VerboseDiagnostics: ptr(false)}, cfg)
}

func TestHCLLoader_EnvFunction(t *testing.T) {
	src := `output_path = env("TASK_TREE_DOTFILE", "./fallback.dot")`

	t.Run("set", func(t *testing.T) {
		cfg, err := testLoader(map[string]string{"TASK_TREE_DOTFILE": "/data/t.dot"}).LoadBytes([]byte(src), "env.hcl")
		require.NoError(t, err)
		assert.Equal(t, ptr("/data/t.dot"), cfg.OutputPath)
	})

	t.Run("unset uses default", func(t *testing.T) {
		cfg, err := testLoader(nil).LoadBytes([]byte(src), "env.hcl")
		require.NoError(t, err)
		assert.Equal(t, ptr("./fallback.dot"), cfg.OutputPath)
	})

	t.Run("unset without default is empty", func(t *testing.T) {
		cfg, err := testLoader(nil).LoadBytes([]byte(`output_path = env("NOPE")`), "env.hcl")
		require.NoError(t, err)
		assert.Equal(t, ptr(""), cfg.OutputPath)
	})
}

func TestHCLLoader_CwdVariable(t *testing.T) {
	cfg, err := testLoader(nil).LoadBytes([]byte(`output_path = "${cwd}/tree.dot"`), "cwd.hcl")
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, ptr(wd+"/tree.dot"), cfg.OutputPath)
}

func TestHCLLoader_Errors(t *testing.T) {
	_, err := testLoader(nil).LoadBytes([]byte(`output_path = `), "broken.hcl")
	assert.ErrorContains(t, err, "failed to parse HCL file broken.hcl")

	_, err = testLoader(nil).LoadBytes([]byte(`unknown_attr = 1`), "extra.hcl")
	assert.ErrorContains(t, err, "failed to decode HCL config")
}

func TestHCLLoader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskancestry.hcl")
	require.NoError(t, os.WriteFile(path, []byte("options {\n  extended_ancestry = true\n}\n"), 0o644))

	cfg, err := NewHCLLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ptr(true), cfg.ExtendedAncestry)

	_, err = NewHCLLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestHCLLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-base.hcl"), []byte("output_path = \"base.dot\"\nworkers = 2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "15-options.hcl"), []byte("healthcheck_port = 8080\noptions {\n  extended_ancestry = true\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-override.hcl"), []byte("output_path = \"override.msgpack\"\nhealthcheck_port = 0\noptions {\n  extended_ancestry = false\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not config"), 0o644))

	cfg, err := NewHCLLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, ptr("override.msgpack"), cfg.OutputPath)
	assert.Equal(t, ptr(2), cfg.Workers)
	assert.Equal(t, ptr(false), cfg.ExtendedAncestry, "a later file may switch an option off")
	assert.Equal(t, ptr(0), cfg.HealthcheckPort)

	_, err = NewHCLLoader().Load(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApply(t *testing.T) {
	cfg := Default()
	cfg.Apply(&Overrides{OutputPath: ptr("a.dot"), VerboseDiagnostics: ptr(true), Workers: ptr(2)})

	assert.Equal(t, "a.dot", cfg.OutputPath)
	assert.True(t, cfg.VerboseDiagnostics)
	assert.False(t, cfg.ExtendedAncestry)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel, "unset fields keep their value")

	cfg.ExtendedAncestry = true
	cfg.HealthcheckPort = 8080
	cfg.Apply(&Overrides{ExtendedAncestry: ptr(false), HealthcheckPort: ptr(0)})
	assert.False(t, cfg.ExtendedAncestry)
	assert.Zero(t, cfg.HealthcheckPort)
}

func TestOverrides_Merge(t *testing.T) {
	o := &Overrides{Format: ptr("dot"), Workers: ptr(3)}
	src := &Overrides{Format: ptr("msgpack"), VerboseDiagnostics: ptr(false)}
	o.Merge(src)

	assert.Equal(t, &Overrides{Format: ptr("msgpack"), Workers: ptr(3), VerboseDiagnostics: ptr(false)}, o)

	*src.Format = "changed"
	assert.Equal(t, "msgpack", *o.Format, "merged values are copies")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "upper case normalized", mutate: func(c *Config) { c.LogLevel = "DEBUG"; c.Format = "MSGPACK" }, ok: true},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "trace" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "bad export format", mutate: func(c *Config) { c.Format = "svg" }},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }},
		{name: "negative port", mutate: func(c *Config) { c.HealthcheckPort = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestResolveOutputPath(t *testing.T) {
	t.Setenv(EnvOutputPath, "")
	assert.Equal(t, DefaultOutputPath, ResolveOutputPath(""))

	t.Setenv(EnvOutputPath, "/env/tree.dot")
	assert.Equal(t, "/env/tree.dot", ResolveOutputPath(""))
	assert.Equal(t, "explicit.dot", ResolveOutputPath("explicit.dot"))
}
