// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的注册表，用于在检查点存储之外持久化
查询记录（当前阶段、暂停原因、resumedFrom/resumedAt 等）。

# 核心类型

  - Manager：封装 go-redis 客户端，提供 StoreWithTTL/Retrieve/Delete/TTL，
    值以 JSON 编码，所有键统一加 KeyPrefix 前缀。Manager 满足
    resume.Registry 接口。
  - Config：地址、密码、连接池、默认 TTL、TLS 开关与健康检查间隔。
    启用 TLS 时使用 tlsutil.ClientConfig，证书按地址中的主机名校验。

# 语义

  - Retrieve 在键不存在时返回 (false, nil)，不是错误。
  - 后台健康检查定时 Ping，失败只记录日志；Close 后循环退出。
*/
package cache
