// Package logger provides structured logging on top of zerolog.
//
// Pipeline components take a *Logger at construction and tag it with
// WithComponent; per-job work is tagged with WithJob so every line of a
// job's pipeline carries its id.
//
//	logging:
//	  level: "info"
//	  format: "json"
package logger
