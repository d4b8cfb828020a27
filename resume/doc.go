// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 resume 提供查询的暂停与恢复编排。

Manager 为每个被跟踪的查询持有一个 lifecycle.Machine，并在 PAUSE 转换的
副作用中捕获检查点。Coordinator 从检查点恢复已暂停的查询：

 1. 定位状态机，不存在时返回 NotFound；
 2. 要求当前阶段为 PAUSED，否则返回 InvalidState 且不做任何修改；
 3. 读取检查点，没有时返回 NoCheckpoint；
 4. 把执行现场与模型配置写回状态机上下文；
 5. 执行 RESUME 转换，副作用失败时状态机进入 ERROR 并返回错误；
 6. 在外部注册表记录 resumed_from 与 resumed_at。

预期的运行时情况以 Success=false 的结果记录返回，结果总是携带错误文本与
查询当前阶段。注册表与训练信号接收方的失败只记录日志，不影响结果。
*/
package resume
