package mail

import "html/template"

type OutboundEmail struct {
	To        string
	ToName    string
	Subject   string
	HTML      string
	Text      string
	MessageID string
}

// Result is the normalized outcome of one transport call.
type Result struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

type LayoutData struct {
	Subject  string
	Title    string
	Greeting string
	Body     template.HTML

	SenderName    string
	SenderTitle   string
	SenderEmail   string
	SenderPhone   string
	SenderCompany string
	SenderWebsite string
	Year          int
}
