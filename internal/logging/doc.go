// Package logging gives each v4lcap subsystem its own slog logger with an
// independently adjustable level.
//
// Modules in use: main, capture (runner and camera session), devices
// (enumeration and hotplug), api and http. Each module has a LevelVar, so
// Initialize, UpdateLevels (config reload) and SetModuleLevel (the
// /api/logging/level route) take effect on loggers already handed out.
// Initialize also swaps the output chain behind those loggers, so a logger
// fetched at package init follows a later format change.
//
// Records go to stdout as text or JSON and, when journald is reachable, to
// the journal with MODULE, DEVICE and other attributes as journal fields:
//
//	journalctl -t v4lcap MODULE=capture -p warn
//
// The level "none" silences a module completely. In TOML:
//
//	[logging]
//	level = "info"
//	format = "json"
//	capture = "debug"
package logging
