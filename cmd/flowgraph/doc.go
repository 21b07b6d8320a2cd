/*
Package main 提供 flowgraph 命令行入口。

# 概述

cmd/flowgraph 是围绕图定义文件的轻量工具,提供校验、试运行和版本
查询子命令。程序支持 YAML 配置文件加载、结构化日志(zap)与可选的
Prometheus 指标端口。

# 主要能力

  - 子命令:validate(校验定义文件)、run(试运行)、version
  - 试运行:每个节点使用转发逻辑,将上下文沿出边传播,记录执行历史
  - 监听模式:--watch 监听定义文件,变更后自动重新试运行
  - 历史持久化:启用时按配置写入 memory 或 redis 存储
  - Metrics 服务器:独立端口暴露 /metrics(Prometheus)
  - 构建注入:Version、GitCommit 通过 ldflags 设置
*/
package main
