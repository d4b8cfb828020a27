// 版权所有 2026 queryflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 lifecycle 提供可中断查询的生命周期状态机。

# 概述

每个被跟踪的查询拥有一台 Machine，初始阶段为 INIT。合法转换由固定的
转换表决定：

	INIT    + START     -> RUNNING
	INIT    + ERROR     -> ERROR
	RUNNING + PAUSE     -> PAUSED
	RUNNING + COMPLETE  -> COMPLETED
	RUNNING + TERMINATE -> TERMINATED
	RUNNING + ERROR     -> ERROR
	PAUSED  + RESUME    -> RUNNING
	PAUSED  + TERMINATE -> TERMINATED
	PAUSED  + ERROR     -> ERROR

COMPLETED、TERMINATED 与 ERROR 为终态。

# 转换语义

  - 未定义的动作返回 *InvalidTransitionError，属于调用方逻辑错误。
  - Guard 返回 false 时转换不发生，Transition 返回 (false, nil)。
  - Effect 在提交前恰好执行一次；失败时状态机以 ERROR 动作进入 ERROR，
    错误写入上下文并以 *EffectError 返回。
  - 每次提交追加一条 StateChangeEvent，历史只追加不修改。

State/Context/History/ValidActions/CanTransition 均为无副作用读取，
Context 返回深拷贝。
*/
package lifecycle
