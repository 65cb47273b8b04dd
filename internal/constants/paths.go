package constants

// Log file names and rotation limits.
const (
	// CLILogFileName is the name of the global CLI log file for host operations.
	// This file is located in ~/.agentforge/logs/agentforge.log
	CLILogFileName = "agentforge.log"

	// LogMaxSizeMB is the size in megabytes at which the CLI log rotates.
	LogMaxSizeMB = 10

	// LogMaxBackups is how many rotated CLI log files are kept.
	LogMaxBackups = 3

	// LogMaxAgeDays is how many days rotated CLI log files are kept.
	LogMaxAgeDays = 30

	// LogCompress gzips rotated CLI log files.
	LogCompress = true
)

// Configuration file names.
const (
	// GlobalConfigName is the name of the AgentForge configuration file.
	// It appears both in the AgentForge home directory and in a project's
	// .agentforge directory.
	GlobalConfigName = "config.yaml"
)

// DefaultAuditMaxTaskDirs is how many per-task audit directories are kept
// before the oldest are pruned.
const DefaultAuditMaxTaskDirs = 50

// Audit file names and patterns.
const (
	// AuditStepFilePattern names per-step audit snapshots, e.g. step-0007.json.
	AuditStepFilePattern = "step-%04d.json"

	// AuditSummaryFileName is the terminal summary written when a run ends.
	AuditSummaryFileName = "summary.json"

	// AuditTrailFileName is the append-only JSONL trail of step snapshots.
	AuditTrailFileName = "trail.jsonl"
)

// Artifact file names.
const (
	// TaskReportFileName is the markdown report artifact written at termination.
	TaskReportFileName = "report.md"
)
