package entity

// FrameStatus 帧处理状态
type FrameStatus string

const (
	FrameStatusNew     FrameStatus = "NEW"
	FrameStatusMasked  FrameStatus = "MASKED"
	FrameStatusQueued  FrameStatus = "QUEUED"
	FrameStatusRunning FrameStatus = "RUNNING"
	FrameStatusDone    FrameStatus = "DONE"
	FrameStatusFailed  FrameStatus = "FAILED"
)

// GenerationStatus 单次生成任务状态
type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "PENDING"
	GenerationStatusRunning   GenerationStatus = "RUNNING"
	GenerationStatusCompleted GenerationStatus = "COMPLETED"
	GenerationStatusFailed    GenerationStatus = "FAILED"
)

// ErrorKind 生成失败的分类
type ErrorKind string

const (
	ErrorKindConfig     ErrorKind = "config"
	ErrorKindSubmission ErrorKind = "submission"
	ErrorKindRemote     ErrorKind = "remote"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindOutput     ErrorKind = "output"
	ErrorKindInternal   ErrorKind = "internal"
)

// Mask 策略标签
const (
	MaskStrategyFace    = "face"
	MaskStrategyPose    = "pose"
	MaskStrategySegment = "segment"
	MaskStrategyPerson  = "person-shoulders"
	MaskStrategyCenter  = "center"
	MaskStrategyManual  = "manual"
)

// frameTransitions lists the statuses reachable from each frame status.
// A redo re-enters QUEUED from DONE or FAILED; an overwritten mask re-enters MASKED.
var frameTransitions = map[FrameStatus][]FrameStatus{
	FrameStatusNew:     {FrameStatusMasked, FrameStatusFailed},
	FrameStatusMasked:  {FrameStatusMasked, FrameStatusQueued, FrameStatusFailed},
	FrameStatusQueued:  {FrameStatusQueued, FrameStatusRunning, FrameStatusFailed},
	FrameStatusRunning: {FrameStatusDone, FrameStatusFailed, FrameStatusQueued},
	FrameStatusDone:    {FrameStatusQueued, FrameStatusMasked, FrameStatusFailed},
	FrameStatusFailed:  {FrameStatusQueued, FrameStatusMasked, FrameStatusFailed},
}

var generationTransitions = map[GenerationStatus][]GenerationStatus{
	GenerationStatusPending: {GenerationStatusRunning, GenerationStatusFailed},
	GenerationStatusRunning: {GenerationStatusCompleted, GenerationStatusFailed},
}

// CanTransitionFrame 判断帧状态迁移是否合法
func CanTransitionFrame(from, to FrameStatus) bool {
	for _, next := range frameTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionGeneration 判断生成状态迁移是否合法，终态不可再变更
func CanTransitionGeneration(from, to GenerationStatus) bool {
	for _, next := range generationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValid 检查帧状态取值
func (s FrameStatus) IsValid() bool {
	_, ok := frameTransitions[s]
	return ok
}

// IsTerminal 判断帧是否处于终态（DONE 或 FAILED）
func (s FrameStatus) IsTerminal() bool {
	return s == FrameStatusDone || s == FrameStatusFailed
}

// IsTerminal 判断生成是否处于终态
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}
