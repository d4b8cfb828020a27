// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 queryflow 运维 HTTP 服务器：Prometheus 指标、
存活探针与依赖就绪探针。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、
    幂等 Shutdown 与异步错误通道。
  - HealthHandler：/health 只报告进程存活；/ready 逐个执行
    注册的 HealthCheck（持久层、Redis 注册表），任一失败返回 503。
  - NewMux：挂载 /health、/healthz、/ready 与 /metrics，
    并通过 RequestRecorder 记录请求指标。
*/
package server
