// Package config loads the bridge configuration from a YAML file.
// Every field has a usable default; a missing file yields the default
// configuration rather than an error. Secrets may reference
// environment variables with ${VAR} syntax.
package config
