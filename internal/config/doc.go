// Package config loads process settings from COMPOSECOMPLETE_* environment
// variables and layers them over the preferences persisted in the cache
// database.
package config
