// Package testutil 提供 flowgraph 测试辅助函数。
//
// 包含测试上下文、异步等待断言以及常用的图构建夹具。
package testutil
