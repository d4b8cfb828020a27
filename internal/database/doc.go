// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，供 SQL 持久层使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB、Ping、
    Stats、Close 以及事务执行。
  - PoolConfig：驱动（sqlite/postgres）、连接串与连接池参数。
    sqlite 固定为单连接。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - Open 按驱动选择 glebarez/sqlite 或 gorm postgres 方言。
  - WithTransactionRetry 对死锁、序列化失败、SQLITE_BUSY 等错误
    做指数退避重试。
  - 可选的后台健康检查，Close 后退出。
*/
package database
