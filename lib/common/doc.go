// Package common contains the pieces shared by the dMap command line tools:
//
//   - Config: the configuration assembled from flags, environment variables
//     (DMAP_<FLAG>) and .env files
//   - Logging: a logger factory for dragonboat's logger package that prints
//     "LEVEL | package | message" lines. All dMap packages obtain their logger
//     with logger.GetLogger(name), InitLoggers sets the factory and levels.
//
// Library users don't need this package. Without InitLoggers the loggers fall
// back to dragonboat's default implementation.
package common
