package protocol

// 错误码
const (
	ErrCodeUnknown           = 1000
	ErrCodeInvalidMsg        = 1001
	ErrCodeRateLimit         = 1002 // 速率限制
	ErrCodeMissingSession    = 2001 // 缺少 sessionId
	ErrCodeStoreUnavailable  = 5001 // 状态存储不可用
	ErrCodeServerMaintenance = 5003 // 服务器维护中
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:           "未知错误",
	ErrCodeInvalidMsg:        "无效的消息格式",
	ErrCodeRateLimit:         "请求过于频繁",
	ErrCodeMissingSession:    "sessionId 不能为空",
	ErrCodeStoreUnavailable:  "状态存储不可用",
	ErrCodeServerMaintenance: "服务器维护中",
}
