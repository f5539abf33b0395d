package impl

import (
	"fmt"
	"time"

	"otp/internal/domain"
)

const connectivityTestBody = "This is a connectivity test from the verification service. No action is needed."

func otpMessageSubject(ch domain.Channel) string {
	if ch == domain.ChannelEmail {
		return "Your verification code"
	}
	return ""
}

func otpMessageBody(ch domain.Channel, code string, ttl time.Duration) string {
	minutes := int(ttl.Minutes())
	if ch == domain.ChannelEmail {
		return fmt.Sprintf("Your verification code is %s. It expires in %d minutes. If you did not request it, ignore this message.", code, minutes)
	}
	return fmt.Sprintf("%s is your verification code. Valid for %d minutes.", code, minutes)
}
