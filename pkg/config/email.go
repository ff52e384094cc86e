package config

// Email configures the Notifier collaborator's transport selection. Spec §6
// recognises EMAIL_PROVIDER plus provider-specific credentials.
type Email struct {
	Provider  string // auto|sendgrid|mailgun|microsoft|google
	AWSRegion string

	SendgridAPIKey string
	MailgunAPIKey  string
	MailgunDomain  string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

func loadEmailConfig() Email {
	return Email{
		Provider:  getEnv("EMAIL_PROVIDER", "auto"),
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		MailgunAPIKey:  getEnv("MAILGUN_API_KEY", ""),
		MailgunDomain:  getEnv("MAILGUN_DOMAIN", ""),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
	}
}
