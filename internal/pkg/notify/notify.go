package notify

// Notifier 定义对外邮件通知接口。
type Notifier interface {
	// SendVerificationCode 发送邮箱验证码。
	SendVerificationCode(toEmail string, fullName string, code string) error
	// SendWelcome 在邮箱验证成功后发送欢迎邮件。
	SendWelcome(toEmail string, fullName string) error
}
