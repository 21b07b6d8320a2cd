// Package types 提供 flowgraph 的共享类型定义。
//
// 当前包含统一错误码（ErrorCode）、结构化错误（Error）以及用于
// settle-all 语义的聚合错误（AggregateError）。聚合错误携带完整的
// 失败原因列表，errors.Is / errors.As 可以遍历其中每一项。
package types
