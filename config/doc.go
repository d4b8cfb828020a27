// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 queryflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（QUERYFLOW_ 前缀）的顺序叠加，
// Validate 一次性汇总所有非法项。FileWatcher 轮询配置文件修改时间，
// 供 serve 命令在运行时重载日志级别。
package config
