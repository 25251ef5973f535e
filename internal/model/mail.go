package model

// Mail is an outbound plain-text message handed to the mail dispatcher.
type Mail struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
}
