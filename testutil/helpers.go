// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, g.Idle, 5*time.Second)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flowgraph/flowgraph/workflow"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("condition not met within %v", timeout)
}

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}

	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual: %s", expectedJSON, actualJSON)
	}
}

// WaitForIdle 等待图中所有节点排空
func WaitForIdle(t *testing.T, g *workflow.Graph, timeout time.Duration) {
	t.Helper()
	AssertEventuallyTrue(t, g.Idle, timeout)
}

// =============================================================================
// 📦 图构建夹具
// =============================================================================

// VisitRecorder 以并发安全的方式记录节点处理顺序
type VisitRecorder struct {
	mu     sync.Mutex
	visits []string
}

// Record 返回记录节点名并转发上下文到所有出边的运行逻辑
func (r *VisitRecorder) Record() workflow.RunFunc {
	return func(ctx context.Context, rc *workflow.RunContext) error {
		r.mu.Lock()
		r.visits = append(r.visits, rc.Node.Name())
		r.mu.Unlock()

		for _, e := range rc.Node.Outgoing() {
			if err := rc.Output.Queue(e); err != nil {
				return err
			}
		}
		return nil
	}
}

// Visits 返回已记录的节点名快照
func (r *VisitRecorder) Visits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.visits...)
}

// Count 返回已记录的访问次数
func (r *VisitRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visits)
}

// LinearGraph 构建 n1 -> n2 -> ... 的线性图,所有节点共用同一运行逻辑
func LinearGraph(t *testing.T, names []string, run workflow.RunFunc) *workflow.Graph {
	t.Helper()
	ctx := TestContext(t)

	if len(names) == 0 {
		t.Fatal("LinearGraph requires at least one node name")
	}

	g := workflow.NewGraph(workflow.GraphConfig{Name: "linear"})
	var prev *workflow.Node
	for _, name := range names {
		n := workflow.NewNode(workflow.NodeConfig{Name: name, Run: run})
		if err := n.Init(ctx); err != nil {
			t.Fatalf("failed to init node %s: %v", name, err)
		}
		if err := g.AddNode(ctx, n); err != nil {
			t.Fatalf("failed to add node %s: %v", name, err)
		}
		if prev != nil {
			if _, err := g.Connect(ctx, prev, n); err != nil {
				t.Fatalf("failed to connect %s -> %s: %v", prev.Name(), name, err)
			}
		}
		prev = n
	}
	return g
}

// FailingRun 返回总是失败的运行逻辑
func FailingRun(msg string) workflow.RunFunc {
	return func(ctx context.Context, rc *workflow.RunContext) error {
		return fmt.Errorf("%s", msg)
	}
}
