package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransitionInProgress 同一状态机上已有转换的副作用正在执行
var ErrTransitionInProgress = errors.New("another transition is in progress")

// ErrCallbackPanic Guard 或 Effect 发生 panic
var ErrCallbackPanic = errors.New("transition callback panicked")

// InvalidTransitionError 当前阶段不存在该动作。属于调用方逻辑错误。
type InvalidTransitionError struct {
	QueryID      string
	Phase        Phase
	Action       Action
	ValidActions []Action
}

func (e *InvalidTransitionError) Error() string {
	valid := make([]string, len(e.ValidActions))
	for i, a := range e.ValidActions {
		valid[i] = string(a)
	}
	list := "none"
	if len(valid) > 0 {
		list = strings.Join(valid, ", ")
	}
	return fmt.Sprintf("invalid transition: action %s is not allowed in phase %s (valid actions: %s)",
		e.Action, e.Phase, list)
}

// EffectError 转换副作用失败。状态机已被强制置为 ERROR。
type EffectError struct {
	QueryID string
	Action  Action
	From    Phase
	Target  Phase
	Err     error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("effect of %s (%s -> %s) failed for query %s: %v",
		e.Action, e.From, e.Target, e.QueryID, e.Err)
}

func (e *EffectError) Unwrap() error {
	return e.Err
}

// IsInvalidTransition 判断错误是否为非法转换
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsEffectFailure 判断错误是否为副作用失败
func IsEffectFailure(err error) bool {
	var target *EffectError
	return errors.As(err, &target)
}
