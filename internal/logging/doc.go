// Package logging provides structured logging with per-module log levels.
//
// Records are routed to every available output:
//   - stdout, when a terminal, pipe, or file is attached
//   - the systemd journal, when journald is reachable
//   - an in-memory ring buffer served by the API
//
// Initialize once at startup, then ask for a module logger:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"recorder": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("recorder")
//	logger.Info("Recording started", "path", path)
//
// Module loggers hold a slog.LevelVar, so [SetLevels] changes verbosity at
// runtime without replacing handlers. The config watcher calls it whenever
// the [logging] section of the config file changes.
//
// The journal and the ring buffer see grouped attributes flattened to dotted
// keys, so slog.Group("frames", "written", n) is frames.written in the API
// and FRAMES_WRITTEN in the journal.
//
// # Viewing Logs
//
//	journalctl -t facegate -f
//	journalctl -t facegate MODULE=recorder
//	journalctl -t facegate SESSION=...
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	recorder = "debug"
//	detect = "warn"
package logging
