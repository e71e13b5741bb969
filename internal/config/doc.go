// Package config loads, normalizes, and validates storyvoice configuration data.
package config
