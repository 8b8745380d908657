// Package log provides the leveled logging used by the checkpoint savers.
//
// The package exposes a small Logger interface, a standard-library backed
// DefaultLogger, and an adapter for github.com/kataras/golog. A package-level
// default logger is initialized once with a defined level; savers log through
// it so failures carry thread/version context without each component owning
// logging configuration.
//
//	log.SetLogLevel(log.LogLevelDebug)
//	log.Info("checkpoint stored for thread %s", threadID)
//
// To route output through golog:
//
//	glogger := golog.New()
//	log.SetDefaultLogger(log.NewGologLogger(glogger))
package log
