// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 checkpoint 提供查询执行现场的两级检查点存储。

# 概述

Store 由进程内快速层和可选的持久层（DurableTier）组成：

  - 快速层是本进程内的权威数据，创建时同步写入；
  - 持久层写入经由有界写队列异步完成，失败只记录日志与指标；
  - 读取先查快速层，未命中再查持久层，命中结果被提升回快速层。

每个查询最多保留 10 个检查点，超出部分按时间戳从旧到新删除，
触发裁剪的那次创建写入的检查点不会被删除。

# 时间戳

检查点键为 queryID:timestamp。LogicalClock 保证同一查询的时间戳
严格递增（max(now, last+1)），因此同一毫秒内的连续写入不会互相覆盖。

# 嵌入

EmbeddingGenerator 生成 384 维的确定性向量：前若干维是执行现场的
统计特征，其余维度由以 queryID 哈希为种子的伪随机序列填充，最后做
L2 归一化。向量只用于 FindSimilar 的相似检索。
*/
package checkpoint
