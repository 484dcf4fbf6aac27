/*
Package log provides structured logging for the tier store using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("migration")                │          │
	│  │  - WithTier("warm")                          │          │
	│  │  - WithKey("user:4821")                      │          │
	│  │  - WithBackend("bolt")                       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "migration",                │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "migration completed"         │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-31T10:30:00Z INF migration completed component=migration │ │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all tierstore packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add subsystem name to all logs (placement, migration,
    policy, coordinator, reconciler, backend.<kind>)
  - WithKey: Add the record key under operation
  - WithTier: Add the tier involved
  - WithBackend: Add the backend kind involved

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "evaluating rule: age_threshold tier=warm"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "coordinator started tiers=4"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "resolved interrupted migration by reverting to source tier"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "checksum mismatch, flagged corrupted"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to recover manifest: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/tierstore/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/tierstore.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("store initialized successfully")
	log.Debug("checking tier capacity")
	log.Warn("tier occupancy above watermark_high")
	log.Error("failed to connect to bolt backend")
	log.Fatal("cannot start without manifest directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("key", "user:4821").
		Int("size", 4096).
		Msg("record admitted")

	log.Logger.Error().
		Err(err).
		Str("tier", "warm").
		Msg("backend health check failed")

Component Loggers:

	// Create component-specific logger
	migLog := log.WithComponent("migration")
	migLog.Info().Msg("starting migration worker pool")
	migLog.Debug().Str("key", "user:4821").Msg("dequeued migration job")

	// Multiple context fields
	reconLog := log.WithComponent("reconciler").
		With().Str("tier", "cold").
		Logger()
	reconLog.Info().Msg("reclaiming orphaned handles")
	reconLog.Error().Err(err).Msg("reconciliation cycle failed")

Context Logger Helpers:

	// Key-specific logs
	keyLog := log.WithKey("user:4821")
	keyLog.Info().Msg("record migrated")

	// Tier-specific logs
	tierLog := log.WithTier("warm")
	tierLog.Info().Msg("tier reached capacity")

	// Backend-specific logs
	backendLog := log.WithBackend("bolt")
	backendLog.Warn().Msg("flush latency elevated")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/cuemby/tierstore/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("tierstore starting")

		// Component-specific logging
		coordLog := log.WithComponent("coordinator")
		coordLog.Info().
			Str("tier", "hot").
			Int("tiers", 4).
			Msg("recovered placement state")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "storage").
			Msg("failed to connect to bolt file")

		log.Info("tierstore stopped")
	}

# Integration Points

This package integrates with:

  - pkg/coordinator: Logs put/get/delete/migrate outcomes
  - pkg/migration: Logs migration job execution
  - pkg/policy: Logs rule evaluation cycles
  - pkg/reconciler: Logs crash recovery sweeps
  - pkg/health: Logs backend liveness transitions
  - pkg/storage: Logs backend operation failures

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"coordinator","time":"2026-07-31T10:30:00Z","message":"coordinator started"}
	{"level":"info","component":"migration","key":"user:4821","time":"2026-07-31T10:30:01Z","message":"migration completed"}
	{"level":"error","component":"storage","tier":"warm","error":"file closed","time":"2026-07-31T10:30:02Z","message":"flush failed"}

Console Format (Development):

	2026-07-31T10:30:00Z INF coordinator started component=coordinator
	2026-07-31T10:30:01Z INF migration completed component=migration key=user:4821
	2026-07-31T10:30:02Z ERR flush failed component=storage tier=warm error="file closed"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or key fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow application performance
  - Cause: Excessive logging in hot path
  - Check: Log statements inside put/get hot paths
  - Solution: Reduce log frequency, use sampling

# Log Rotation

File-Based Logging:

The store doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/tierstore
	/var/log/tierstore/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u tierstore -f

Docker/Kubernetes:
	# Use container runtime log drivers
	# JSON logs to stdout (already implemented)

# Log Aggregation

Recommended Tools:

Elasticsearch + Filebeat:
  - Filebeat ships logs to Elasticsearch
  - Kibana for visualization and search
  - Query: component:"migration" AND level:"error"

Loki + Promtail:
  - Lightweight log aggregation
  - Grafana integration
  - Query: {component="reconciler"} |= "error"

CloudWatch Logs:
  - AWS native log aggregation
  - Metric filters for alerting
  - Query: fields @message | filter component = "coordinator"

Datadog:
  - Full-stack observability
  - APM and log correlation
  - Query: service:tierstore component:migration status:error

# Monitoring

Log-Based Alerts:

High Error Rate:
  - Query: rate(log entries with level="error"[5m]) > 10
  - Description: More than 10 errors per second
  - Action: Check recent errors, investigate root cause

No Logs:
  - Query: absent(log entries[1m])
  - Description: No logs received in 1 minute
  - Action: Check tierstore process, log pipeline

Specific Error Pattern:
  - Query: log entries containing "failed to connect to bolt"
  - Description: Durable backend connection issues
  - Action: Check backend file path, disk permissions

# Security

Log Content:
  - Never log secrets or sensitive data
  - Never log full record payloads, only keys and sizes
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user-supplied keys into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (key, tier, backend)

Don't:
  - Log sensitive data (secrets, passwords, payload bytes)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
  - Log aggregation: https://www.elastic.co/what-is/log-aggregation
*/
package log
