package workflow

import (
	"sync"
	"time"
)

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the execution failed
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// NodeExecution records the processing of a single context by a node
type NodeExecution struct {
	NodeID    string          `json:"node_id"`
	NodeName  string          `json:"node_name"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory records the complete execution path of a workflow run
type ExecutionHistory struct {
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	Status      ExecutionStatus  `json:"status"`
	Nodes       []*NodeExecution `json:"nodes"`
	Error       string           `json:"error,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`

	mu sync.Mutex
}

// NewExecutionHistory creates a new execution history
func NewExecutionHistory(executionID, workflowID string) *ExecutionHistory {
	return &ExecutionHistory{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		StartTime:   time.Now(),
		Status:      ExecutionStatusRunning,
		Nodes:       make([]*NodeExecution, 0),
		Metadata:    make(map[string]any),
	}
}

// RecordNodeStart appends a running node record and returns it.
func (h *ExecutionHistory) RecordNodeStart(nodeID, nodeName string) *NodeExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &NodeExecution{
		NodeID:    nodeID,
		NodeName:  nodeName,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
	h.Nodes = append(h.Nodes, rec)
	return rec
}

// RecordNodeEnd finalizes a node record.
func (h *ExecutionHistory) RecordNodeEnd(rec *NodeExecution, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	if err != nil {
		rec.Status = ExecutionStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = ExecutionStatusCompleted
	}
}

// Complete finalizes the history.
func (h *ExecutionHistory) Complete(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	if err != nil {
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
	} else {
		h.Status = ExecutionStatusCompleted
	}
}

// NodeCount returns the number of node records.
func (h *ExecutionHistory) NodeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Nodes)
}

// NewHistoryRecorder returns a StreamEmitter that appends node events
// to the history. Install it with WithStreamEmitter before running a
// graph to capture every node's processing, including work done by the
// detached drain loops.
func NewHistoryRecorder(h *ExecutionHistory) StreamEmitter {
	var mu sync.Mutex
	open := make(map[string][]*NodeExecution)

	return func(ev StreamEvent) {
		switch ev.Type {
		case StreamEventNodeStart:
			rec := h.RecordNodeStart(ev.NodeID, ev.NodeName)
			mu.Lock()
			open[ev.NodeID] = append(open[ev.NodeID], rec)
			mu.Unlock()

		case StreamEventNodeComplete, StreamEventNodeError:
			mu.Lock()
			recs := open[ev.NodeID]
			if len(recs) == 0 {
				mu.Unlock()
				return
			}
			rec := recs[0]
			open[ev.NodeID] = recs[1:]
			mu.Unlock()
			h.RecordNodeEnd(rec, ev.Error)
		}
	}
}
