package model

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message for the user, drained when state is read.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}
