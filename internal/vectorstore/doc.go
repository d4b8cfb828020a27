// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 vectorstore 提供 checkpoint.DurableTier 的持久层实现。

  - QdrantStore：经 gRPC 写入 Qdrant 集合，点 ID 由检查点键派生，
    payload 携带查询 ID、时间戳、阶段与检查点 JSON；
  - SQLStore：基于 GORM，支持 sqlite 与 postgres，相似检索为暴力余弦。

Open 按配置的后端名创建持久层并确保集合存在。
*/
package vectorstore
