// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 queryflow 服务端程序入口。

serve 按配置装配持久层（none/memory/qdrant/sql）、有界写队列、
两级检查点存储、查询管理器与恢复协调器，并在单独端口上暴露
/metrics、/health 与 /ready。SIGINT/SIGTERM 触发优雅关闭：先停止
HTTP 服务，再等待写队列排空，最后关闭持久层与注册表连接。
配置文件变更时在运行时调整日志级别。

check 只打开存储层，对指定查询的最新检查点执行必需字段校验，
输出 JSON 报告，校验失败时退出码为 1。

health 请求运行中实例的 /ready，用于容器探针。
*/
package main
