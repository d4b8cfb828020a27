// Copyright (c) queryflow Authors.
// Licensed under the MIT License.

/*
Package types 提供 queryflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 lifecycle、checkpoint、
resume 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Value / Map：带类型标签的 JSON 值（null/boolean/number/string/array/object），
    提供深拷贝、深比较与无损 JSON 往返；数字保留原始文本
  - ExecutionContext：有序任务队列、Agent 状态、资源计量与自由变量
  - TaskEntry / AgentState / TaskStatus：执行现场的组成部分
  - ModelConfig：模型配置快照
  - Error / ErrorCode：结构化错误体系，含 QueryID 与 Retryable 标记

# 主要能力

  - 深拷贝：Value.Clone / Map.Clone / ExecutionContext.Clone / ModelConfig.Clone
  - 深比较：Value.Equal / Map.Equal / ExecutionContext.Equal
  - 错误工具链：GetErrorCode / IsErrorCode / IsRetryable
*/
package types
