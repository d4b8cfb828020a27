// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖检查点存储、
生命周期转换、恢复流程与守护进程的 HTTP 端点。

# 概述

Collector 通过 promauto.With 注册到调用方传入的 Registerer，
同一进程内可以按 namespace 隔离多套指标。Collector 同时实现
checkpoint.Recorder 与 resume.Recorder。

# 主要指标

  - 检查点：创建数、创建耗时、序列化大小、各层命中/未命中、
    裁剪数、持久层失败数（按 operation 分组）。
  - 生命周期：已提交转换（from/to/action）、暂停与恢复结果。
  - 写队列：积压数量 Gauge。
  - HTTP：/metrics 与 /health 的请求数与耗时。
*/
package metrics
