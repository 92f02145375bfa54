// Package config loads the WalletChat configuration from a YAML or JSON file,
// fills in defaults and resolves secrets referenced through environment
// variables.
package config
