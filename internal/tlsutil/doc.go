// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package tlsutil 集中提供出站连接的 TLS 配置，
// 用于 Redis 注册表与 health 命令的 HTTP 客户端（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
