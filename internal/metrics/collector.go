// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器。nil Collector 的所有方法都是 no-op，
// 因此核心代码可以无条件调用。
type Collector struct {
	// 节点指标
	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec
	nodeQueueDepth        *prometheus.GaugeVec

	// 边指标
	edgeWritesTotal *prometheus.CounterVec

	// 运行指标
	graphRunsTotal      *prometheus.CounterVec
	graphRunDuration    *prometheus.HistogramVec
	pipelineRunsTotal   *prometheus.CounterVec
	pipelineRunDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认 Registerer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node context executions",
		},
		[]string{"node", "status"},
	)

	c.nodeExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node context execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	c.nodeQueueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_queue_depth",
			Help:      "Number of contexts pending in a node's queue",
		},
		[]string{"node"},
	)

	c.edgeWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_writes_total",
			Help:      "Total number of edge writes",
		},
		[]string{"status"},
	)

	c.graphRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_runs_total",
			Help:      "Total number of graph runs",
		},
		[]string{"status"},
	)

	c.graphRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_run_duration_seconds",
			Help:      "Graph entry dispatch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	c.pipelineRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	c.pipelineRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	return c
}

// RecordNodeExecution 记录一次节点上下文执行。
func (c *Collector) RecordNodeExecution(node, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.nodeExecutionsTotal.WithLabelValues(node, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// SetQueueDepth 更新节点队列深度。
func (c *Collector) SetQueueDepth(node string, depth int) {
	if c == nil {
		return
	}
	c.nodeQueueDepth.WithLabelValues(node).Set(float64(depth))
}

// RecordEdgeWrite 记录一次边写入。
func (c *Collector) RecordEdgeWrite(status string) {
	if c == nil {
		return
	}
	c.edgeWritesTotal.WithLabelValues(status).Inc()
}

// RecordGraphRun 记录一次图运行。
func (c *Collector) RecordGraphRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.graphRunsTotal.WithLabelValues(status).Inc()
	c.graphRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPipelineRun 记录一次流水线运行。
func (c *Collector) RecordPipelineRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.pipelineRunsTotal.WithLabelValues(status).Inc()
	c.pipelineRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}
