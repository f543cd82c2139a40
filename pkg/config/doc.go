// Package config loads hierosoft settings. Values are layered in this
// order, later layers winning: the embedded defaults, the user config file,
// HIEROSOFT_* environment variables and finally explicit overrides (usually
// command-line flags).
package config
