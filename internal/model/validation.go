package model

import (
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/rivo/uniseg"
)

// MaxNameGraphemes is the longest name accepted, in user-perceived characters
const MaxNameGraphemes = 256

// ForbiddenNameChars may not appear anywhere in a subscriber name
var ForbiddenNameChars = []rune{'/', '(', ')', '"', '<', '>', '\\', '{', '}'}

// SubscriberName is a display name that passed ParseSubscriberName
type SubscriberName string

// ParseSubscriberName validates an untrusted name
func ParseSubscriberName(raw string) (SubscriberName, error) {
	isEmpty := strings.TrimSpace(raw) == ""
	isTooLong := uniseg.GraphemeClusterCount(raw) > MaxNameGraphemes
	hasForbidden := strings.ContainsFunc(raw, func(r rune) bool {
		for _, f := range ForbiddenNameChars {
			if r == f {
				return true
			}
		}
		return false
	})

	if isEmpty || isTooLong || hasForbidden {
		return "", fmt.Errorf("%q is not a valid subscriber name", raw)
	}
	return SubscriberName(raw), nil
}

func (n SubscriberName) String() string { return string(n) }

// SubscriberEmail is an address that passed ParseSubscriberEmail
type SubscriberEmail string

// ParseSubscriberEmail validates an untrusted email address
func ParseSubscriberEmail(raw string) (SubscriberEmail, error) {
	if raw == "" || !govalidator.IsEmail(raw) {
		return "", fmt.Errorf("%q is not a valid subscriber email", raw)
	}
	return SubscriberEmail(raw), nil
}

func (e SubscriberEmail) String() string { return string(e) }
