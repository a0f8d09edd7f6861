package entity

import "fmt"

// CheckFrameTransition 校验帧状态迁移，相同状态视为无操作
func CheckFrameTransition(from, to FrameStatus) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown frame status %q", ErrInvalidTransition, to)
	}
	if from == to || CanTransitionFrame(from, to) {
		return nil
	}
	return fmt.Errorf("%w: frame %s -> %s", ErrInvalidTransition, from, to)
}

// CheckGenerationTransition 校验生成状态迁移，终态不可再变更
func CheckGenerationTransition(from, to GenerationStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: generation is %s", ErrTerminalGeneration, from)
	}
	if from == to || CanTransitionGeneration(from, to) {
		return nil
	}
	return fmt.Errorf("%w: generation %s -> %s", ErrInvalidTransition, from, to)
}
