// Package logger provides a simple, thread-safe logging facility.
//
// Log lines carry a timestamp, a level, and an optional scope tag
// (scenario id, node id, component name). A package-level default
// logger writes to stdout at INFO; --verbose lowers it to DEBUG.
package logger
