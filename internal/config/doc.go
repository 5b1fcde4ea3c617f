// Package config defines the reactq configuration and opens the state
// store it describes.
//
// Configuration is loaded with confloader (YAML file, REACTQ_ environment,
// command-line overrides) on top of Default().
package config
