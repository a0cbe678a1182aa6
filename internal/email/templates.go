package email

import (
	"fmt"
	"net/url"
	"strings"
)

// ConfirmationSubject is the subject line of the confirmation email
const ConfirmationSubject = "Welcome!"

// ConfirmationLink builds the link a subscriber follows to confirm
func ConfirmationLink(baseURL, token string) string {
	q := url.Values{}
	q.Set("subscription_token", token)
	return strings.TrimRight(baseURL, "/") + "/subscriptions/confirm?" + q.Encode()
}

// ConfirmationEmailHTML returns the HTML body carrying link
func ConfirmationEmailHTML(link string) string {
	return fmt.Sprintf(`Welcome to our newsletter!<br />Click <a href="%s">here</a> to confirm your subscription.`, link)
}

// ConfirmationEmailText returns the plain-text body carrying link
func ConfirmationEmailText(link string) string {
	return fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
}

// ConfirmationMessage assembles the full confirmation email for recipient
func ConfirmationMessage(recipient, baseURL, token string) Message {
	link := ConfirmationLink(baseURL, token)
	return Message{
		To:       recipient,
		Subject:  ConfirmationSubject,
		HTMLBody: ConfirmationEmailHTML(link),
		TextBody: ConfirmationEmailText(link),
	}
}
