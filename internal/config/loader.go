package config

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/fsutil"
)

// Loader reads a configuration file. Only the values present in the file
// are set on the returned Overrides.
type Loader interface {
	Load(ctx context.Context, path string) (*Overrides, error)
}

// HCLLoader is the HCL implementation of Loader.
type HCLLoader struct {
	lookupEnv func(string) (string, bool)
}

// NewHCLLoader creates a loader that resolves env() against the process environment.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{lookupEnv: os.LookupEnv}
}

// fileRoot is the top-level schema of a configuration file.
type fileRoot struct {
	OutputPath      *string       `hcl:"output_path,optional"`
	Format          *string       `hcl:"format,optional"`
	LogLevel        *string       `hcl:"log_level,optional"`
	LogFormat       *string       `hcl:"log_format,optional"`
	HealthcheckPort *int          `hcl:"healthcheck_port,optional"`
	Workers         *int          `hcl:"workers,optional"`
	Options         *optionsBlock `hcl:"options,block"`
	Ingest          *ingestBlock  `hcl:"ingest,block"`
}

type optionsBlock struct {
	ExtendedAncestry   *bool `hcl:"extended_ancestry,optional"`
	VerboseDiagnostics *bool `hcl:"verbose_diagnostics,optional"`
}

type ingestBlock struct {
	Address *string `hcl:"address,optional"`
	Path    *string `hcl:"path,optional"`
}

// Load parses and decodes path. A directory is searched recursively for
// .hcl files, which are merged in lexical order so later files win.
func (l *HCLLoader) Load(ctx context.Context, path string) (*Overrides, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loader started.", "path", path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	files := []string{path}
	if info.IsDir() {
		if files, err = fsutil.FindFilesByExtension(path, ".hcl"); err != nil {
			return nil, fmt.Errorf("failed to scan config directory %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: no .hcl files in %s", ErrInvalid, path)
		}
	}

	parser := hclparse.NewParser()
	merged := &Overrides{}
	for _, name := range files {
		file, diags := parser.ParseHCLFile(name)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", name, diags)
		}
		cfg, err := l.decode(file.Body)
		if err != nil {
			return nil, err
		}
		merged.Merge(cfg)
		logger.Debug("Config file loaded.", "file", name)
	}
	return merged, nil
}

// LoadBytes parses src as if it were read from filename.
func (l *HCLLoader) LoadBytes(src []byte, filename string) (*Overrides, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.decode(file.Body)
}

func (l *HCLLoader) decode(body hcl.Body) (*Overrides, error) {
	var root fileRoot
	diags := gohcl.DecodeBody(body, l.evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL config: %w", diags)
	}

	cfg := &Overrides{
		OutputPath:      root.OutputPath,
		Format:          root.Format,
		LogLevel:        root.LogLevel,
		LogFormat:       root.LogFormat,
		HealthcheckPort: root.HealthcheckPort,
		Workers:         root.Workers,
	}
	if root.Options != nil {
		cfg.ExtendedAncestry = root.Options.ExtendedAncestry
		cfg.VerboseDiagnostics = root.Options.VerboseDiagnostics
	}
	if root.Ingest != nil {
		cfg.IngestAddress = root.Ingest.Address
		cfg.IngestPath = root.Ingest.Path
	}
	return cfg, nil
}

func (l *HCLLoader) evalContext() *hcl.EvalContext {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"cwd": cty.StringVal(cwd),
		},
		Functions: map[string]function.Function{
			"env": l.envFunc(),
		},
	}
}

// envFunc implements env(name[, default]).
func (l *HCLLoader) envFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
		},
		VarParam: &function.Parameter{Name: "default", Type: cty.String},
		Type:     function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if len(args) > 2 {
				return cty.NilVal, fmt.Errorf("env takes at most two arguments, got %d", len(args))
			}
			if v, ok := l.lookupEnv(args[0].AsString()); ok {
				return cty.StringVal(v), nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return cty.StringVal(""), nil
		},
	})
}
