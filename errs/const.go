package errs

const (
	ErrCode_OK            = 0
	ErrCode_Unknown       = 1
	ErrCode_AdapterClosed = 100
	ErrCode_TaskQueueFull = 101
	ErrCode_InvalidConfig = 102
	ErrCode_Redis         = 103
	ErrCode_LoopStopped   = 104
)

var (
	Unknown       = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	AdapterClosed = CreateCodeError(ErrCode_AdapterClosed, "ADAPTER_CLOSED")
	TaskQueueFull = CreateCodeError(ErrCode_TaskQueueFull, "TASK_QUEUE_FULL")
	InvalidConfig = CreateCodeError(ErrCode_InvalidConfig, "INVALID_CONFIG")
	Redis         = CreateCodeError(ErrCode_Redis, "REDIS")
	LoopStopped   = CreateCodeError(ErrCode_LoopStopped, "LOOP_STOPPED")
)
