/*
Package workflow 提供 flowgraph 的工作流编排与执行引擎。

# 概述

workflow 包实现了两类执行模型并通过统一的调度协议组合：

  - Pipeline — 顺序中间件链。每个 Task 在调用 next 之前的代码构成
    前向阶段（forward pass），next 返回之后的代码构成后向阶段
    （backward pass），类似中间件洋葱模型。
  - Graph — 有向无环图。Node 之间通过 Edge 传递共享状态，节点内部
    维护 FIFO 队列与有界并发的 drain 循环，入口节点由拓扑推导
    （没有任何入边的节点）。

# 核心接口与类型

  - Workflow        — 带 Kind 判别式的标签联合（Task / Pipeline / Graph）
  - Run             — 统一调度入口 Run(ctx, wf, state, next)
  - Task / Next     — 中间件函数与续延（continuation）
  - Pipeline        — 追加式工作流序列，快照式运行
  - Node / Edge     — DAG 计算单元与单向通道
  - Output          — 每次运行的出边队列，一次性 flush
  - Graph           — DAG 容器，负责入口分发与失败聚合
  - GraphBuilder    — Fluent API 构建 DAG（含环检测）
  - GraphDefinition — JSON / YAML 可序列化图定义

# 错误语义

所有并发分发（批量节点运行、并行边写入、入口节点分发、批量 push）
均采用 settle-all 语义：等待全部结算后把所有失败包装为
types.AggregateError，绝不 fail-fast。节点 drain 循环中的批次失败只
通过 error 事件上报，不会中断循环。

# 生命周期钩子

init、destroy、edge_add、edge_remove、run、incoming、outgoing、push
均为可替换的 Workflow，默认实现是立即调用 next 的透传任务。
*/
package workflow
