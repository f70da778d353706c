// Package config loads, normalizes, and validates Segue configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SEGUE_FEED_URL and SEGUE_NTFY_TOPIC. The Config type centralizes every knob
// the daemon and CLI need, from the managed binary and release channel to
// staging directories and retry budgets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
