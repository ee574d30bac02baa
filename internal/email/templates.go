package email

import (
	"fmt"
	"html"
	"time"

	"github.com/bankportal/idcore/internal/model"
)

type codeCopy struct {
	subject string
	heading string
	intro   string
	outro   string
}

var codeTemplates = map[model.ChallengePurpose]codeCopy{
	model.PurposeMFA: {
		subject: "Your %s sign-in code",
		heading: "Confirm it's you",
		intro:   "Use this code to finish signing in to %s.",
		outro:   "If you did not try to sign in, change your password and contact the bank.",
	},
	model.PurposePasswordReset: {
		subject: "Reset your %s password",
		heading: "Password reset code",
		intro:   "Someone asked to reset the password for your %s account. Use this code to continue.",
		outro:   "If you did not request a reset you can ignore this email. Your password has not changed.",
	},
	model.PurposeEmailVerify: {
		subject: "Verify your email for %s",
		heading: "Verify your email",
		intro:   "Use this code to confirm your email address with %s.",
		outro:   "If you did not expect this email you can ignore it.",
	},
}

// CodeMessage renders the one-time code email for purpose
func CodeMessage(to string, purpose model.ChallengePurpose, code, appName string, ttl time.Duration) Message {
	c, ok := codeTemplates[purpose]
	if !ok {
		c = codeTemplates[model.PurposeMFA]
	}
	minutes := int(ttl.Minutes())
	intro := fmt.Sprintf(c.intro, appName)

	return Message{
		To:       to,
		Subject:  fmt.Sprintf(c.subject, appName),
		HTMLBody: codeHTML(c.heading, intro, code, c.outro, appName, minutes),
		TextBody: fmt.Sprintf("%s\n\n%s\n\nYour code: %s\n\nThis code expires in %d minutes. %s\n\n- %s",
			c.heading, intro, code, minutes, c.outro, appName),
	}
}

// CodeSMS renders the short text used for SMS delivery
func CodeSMS(purpose model.ChallengePurpose, code, appName string, ttl time.Duration) string {
	return fmt.Sprintf("%s %s code: %s. Valid for %d minutes. Never share this code.",
		appName, purpose, code, int(ttl.Minutes()))
}

func codeHTML(heading, intro, code, outro, appName string, minutes int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="margin:0;padding:0;font-family:Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="padding:40px 0;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;">
  <tr><td style="padding:32px 40px 16px;text-align:center;"><h1 style="margin:0;font-size:22px;color:#0b2545;">%s</h1></td></tr>
  <tr><td style="padding:0 40px 24px;font-size:15px;color:#4a4a68;">%s</td></tr>
  <tr><td style="padding:0 40px 24px;text-align:center;">
    <span style="font-family:'Courier New',monospace;font-size:34px;font-weight:bold;letter-spacing:8px;color:#0b2545;">%s</span>
  </td></tr>
  <tr><td style="padding:0 40px 32px;font-size:13px;color:#8888a0;">This code expires in <strong>%d minutes</strong>. %s</td></tr>
  <tr><td style="padding:16px 40px;background-color:#f9f9fc;font-size:12px;color:#aaaabc;text-align:center;">&copy; %s</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, html.EscapeString(heading), html.EscapeString(heading), html.EscapeString(intro),
		html.EscapeString(code), minutes, html.EscapeString(outro), html.EscapeString(appName))
}
