package datarequest

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/privacy"
)

// Delivery is how a result notification reaches its recipients.
type Delivery int

// Deliveries.
const (
	// DeliveryNone sends no result notification.
	DeliveryNone Delivery = iota
	// DeliveryAll sends in-app and by email.
	DeliveryAll
	// DeliveryEmailOnly sends by email alone, for accounts that are gone.
	DeliveryEmailOnly
)

// typeStrategy holds everything that varies by request type.
type typeStrategy struct {
	Label      string
	ShortLabel string
	Delivery   Delivery
	// Fulfil carries out the request and returns a link for the result
	// notification, if any.
	Fulfil func(ctx context.Context, pm privacy.Manager, subjectID string) (string, error)
	// ResultBody is the result notification text for site.
	ResultBody func(site string) string
}

var strategies = map[Type]typeStrategy{
	TypeExport: {
		Label:      "Export all of my personal data",
		ShortLabel: "Export",
		Delivery:   DeliveryAll,
		Fulfil: func(ctx context.Context, pm privacy.Manager, subjectID string) (string, error) {
			return pm.ExportUserData(ctx, subjectID)
		},
		ResultBody: func(site string) string {
			return fmt.Sprintf("Your copy of your personal data in %s that you recently requested is now available for download. "+
				"Please click on the link below to go to the download page.", site)
		},
	},
	TypeDelete: {
		Label:      "Delete all of my personal data",
		ShortLabel: "Delete",
		Delivery:   DeliveryEmailOnly,
		Fulfil: func(ctx context.Context, pm privacy.Manager, subjectID string) (string, error) {
			return "", pm.DeleteUserData(ctx, subjectID)
		},
		ResultBody: func(site string) string {
			return fmt.Sprintf("You recently requested to have your account and personal data in %s to be deleted. "+
				"This process has been completed and you will no longer be able to log in.", site)
		},
	},
	TypeOthers: {
		Label:      "General inquiry",
		ShortLabel: "Others",
		Delivery:   DeliveryNone,
	},
}

func strategyFor(t Type) (typeStrategy, error) {
	s, ok := strategies[t]
	if !ok {
		return typeStrategy{}, fmt.Errorf("unknown request type %d", t)
	}
	return s, nil
}

// Label returns the human readable description of a request type.
func (t Type) Label() string {
	return strategies[t].Label
}

// ShortLabel returns the short name of a request type.
func (t Type) ShortLabel() string {
	return strategies[t].ShortLabel
}

// SubjectLine is the notification subject for requests of type t.
func SubjectLine(t Type) string {
	return "Data request: " + t.Label()
}

// dpoMessage is the notification an officer receives about a new request.
func dpoMessage(r *DataRequest, dpo, requester, subject *directory.User, requestsURL string) notify.Message {
	requestFor := requester.FullName
	if subject.ID != requester.ID {
		requestFor = subject.FullName
	}

	fields := [][2]string{
		{"Requested by", requester.FullName},
		{"Request for", requestFor},
		{"Type", r.Type.Label()},
		{"Date", r.CreatedAt.UTC().Format(time.RFC1123)},
		{"Comments", r.Comments},
	}

	var plain, markup strings.Builder
	fmt.Fprintf(&plain, "Dear %s,\n\nThe following data request has been submitted:\n\n", dpo.FullName)
	fmt.Fprintf(&markup, "<p>Dear %s,</p><p>The following data request has been submitted:</p><dl>", html.EscapeString(dpo.FullName))
	for _, f := range fields {
		fmt.Fprintf(&plain, "%s: %s\n", f[0], f[1])
		fmt.Fprintf(&markup, "<dt>%s</dt><dd>%s</dd>", f[0], html.EscapeString(f[1]))
	}
	markup.WriteString("</dl>")
	if requestsURL != "" {
		fmt.Fprintf(&plain, "\nView data requests: %s\n", requestsURL)
		fmt.Fprintf(&markup, `<p><a href="%s">View data requests</a></p>`, html.EscapeString(requestsURL))
	}

	return notify.Message{
		From:       requester.ID,
		To:         dpo.ID,
		Subject:    SubjectLine(r.Type),
		HTML:       markup.String(),
		Plain:      plain.String(),
		ContextURL: requestsURL,
	}
}

// resultMessage tells a user that a request has been processed.
func resultMessage(r *DataRequest, from string, to *directory.User, body, link string) notify.Message {
	plain := fmt.Sprintf("Hi %s,\n\n%s\n", to.FullName, body)
	markup := fmt.Sprintf("<p>Hi %s,</p><p>%s</p>", html.EscapeString(to.FullName), html.EscapeString(body))
	if link != "" {
		plain += "\nDownload: " + link + "\n"
		markup += fmt.Sprintf(`<p><a href="%s">Download</a></p>`, html.EscapeString(link))
	}
	return notify.Message{
		From:       from,
		To:         to.ID,
		Subject:    SubjectLine(r.Type),
		HTML:       markup,
		Plain:      plain,
		ContextURL: link,
	}
}
