/*
Package log provides structured logging for quorumvault using zerolog.

The log package wraps zerolog to provide leveled, optionally JSON-structured
logging with component- and node-scoped child loggers (WithComponent,
WithNodeID, WithBucket, WithTerm). Every node initializes the global Logger
once at startup via Init, then each component derives its own child logger
so log lines are consistently tagged without threading a logger through
every call.
*/
package log
