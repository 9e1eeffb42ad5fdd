// Package notify delivers messages to users through the platform's
// notification service.
package notify

import "context"

//go:generate mockgen -source=notify.go -destination=mocks/gateway_mock.go -package=mocks Gateway

// Channel names understood by the notification service.
const (
	ChannelInApp = "inapp"
	ChannelEmail = "email"
)

// Message is a notification from one user to another.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Plain   string
	// ContextURL links the notification to a page, such as a download page.
	ContextURL string
}

// Gateway sends notifications. Both methods are fallible; callers decide
// whether a failure is fatal.
type Gateway interface {
	// Send delivers through every channel the recipient has enabled.
	Send(ctx context.Context, msg Message) error

	// SendEmailOnly delivers by email alone, for recipients that can no
	// longer log in.
	SendEmailOnly(ctx context.Context, msg Message) error
}
