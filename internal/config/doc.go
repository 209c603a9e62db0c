// Package config holds the tracker's runtime configuration and loads it from
// an optional HCL file.
//
// Values are layered: Default(), then the HCL file, then command-line flags.
// HCL files are evaluated with a small context: a cwd variable and an
// env(name, default) function, so a file can defer to the environment:
//
//	output_path = env("TASK_TREE_DOTFILE", "./tree.dot")
//
//	options {
//	  extended_ancestry   = true
//	  verbose_diagnostics = false
//	}
//
// The output path is resolved once per export by ResolveOutputPath.
package config
