// Package config 提供 flowgraph 的配置管理功能。
//
// 支持从 YAML 文件和环境变量加载配置,
// 并提供图定义文件的变更监听能力。
package config
