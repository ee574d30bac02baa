package model

// MFAMethodType represents a second-factor method
type MFAMethodType string

const (
	MFAMethodEmail MFAMethodType = "email"
	MFAMethodSMS   MFAMethodType = "sms"
	MFAMethodTOTP  MFAMethodType = "totp"
)

// Channel returns the delivery channel for code-based methods
func (m MFAMethodType) Channel() (Channel, bool) {
	switch m {
	case MFAMethodEmail:
		return ChannelEmail, true
	case MFAMethodSMS:
		return ChannelSMS, true
	}
	return ChannelNone, false
}

// MFASetupResponse is returned when setting up TOTP
type MFASetupResponse struct {
	Secret    string `json:"secret"`
	QRCode    string `json:"qrCode"` // base64-encoded PNG
	Issuer    string `json:"issuer"`
	AccountID string `json:"accountId"`
}

// MFAChallengeResponse is returned when MFA is required during login
type MFAChallengeResponse struct {
	Status           string          `json:"status"` // "mfa_required"
	MFAToken         string          `json:"mfaToken"`
	AvailableMethods []MFAMethodType `json:"availableMethods"`
}
