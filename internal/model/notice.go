package model

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient notification shown once on the next rendered page.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

func SuccessNotice(msg string) Notice {
	return Notice{Kind: NoticeSuccess, Message: msg}
}

func ErrorNotice(msg string) Notice {
	return Notice{Kind: NoticeError, Message: msg}
}
