// Package config loads stormscript configuration.
//
// Sources are applied in order, later ones winning:
//
//  1. Built-in defaults (Default)
//  2. The configuration file, TOML or YAML by extension, with its @includes
//  3. STORMSCRIPT_* environment variables
//
// The merged map is decoded into a typed Config and validated. Unknown
// settings are reported as validation errors.
//
// Example file:
//
//	[script]
//	max_macro_depth = 64
//	max_loop_iterations = 100000
//	eval_timeout = "5s"
//
//	[hooks]
//	startup = "greet"
//	buffer-enter = "on_enter"
//
//	[keys]
//	"Ctrl+G" = "greet"
//
//	[macros]
//	paths = ["~/.config/stormscript/macros"]
//	watch = true
package config
