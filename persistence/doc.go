// Package persistence provides persistent storage for workflow
// execution histories.
//
// Histories are collected in-process by workflow.ExecutionHistory;
// this package persists them for auditing, debugging, and tracing
// executions across restarts.
//
// Supported backends:
//   - Memory: For development and testing (default)
//   - Redis: For distributed production deployments
package persistence
