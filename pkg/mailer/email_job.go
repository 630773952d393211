package mailer

// EmailJob is the JSON payload put on the RabbitMQ email queue.
// Either Template (with Data) or Subject/Text/HTML must be set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // e.g. "profile_completed"
	Data     map[string]any `json:"data,omitempty"`
}
