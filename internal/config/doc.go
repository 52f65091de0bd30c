// Package config defines the booking proxy configuration model and its
// YAML loader.
//
// Configuration files support ${VAR} and ${VAR:-default} environment
// variable substitution. Durations are human-readable strings ("30s",
// "1h"). A Watcher built on fsnotify reloads the file on change so the
// scheme policy and proxied-prefix list can be updated without a
// restart.
package config
