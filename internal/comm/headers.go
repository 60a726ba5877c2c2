package comm

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Header keys of the v-* routing taxonomy.
const (
	HeaderToPublic   = "v-to-public"
	headerFromPrefix = "v-from-acct-"
	headerToPrefix   = "v-to-acct-"
)

// HeaderFromAcct returns the header key naming key as an interaction's
// originator.
func HeaderFromAcct(key string) string {
	return headerFromPrefix + key
}

// HeaderToAcct returns the header key naming key as an interaction
// recipient.
func HeaderToAcct(key string) string {
	return headerToPrefix + key
}

// Recipient is the sum type Public | Account(key) used for note addressing
// and, by extension, interaction recipients.
type Recipient struct {
	Public     bool
	AccountKey string
}

// Public is the shared Recipient value for the public audience.
var Public = Recipient{Public: true}

// Account builds a Recipient naming a specific account by key.
func Account(key string) Recipient {
	return Recipient{AccountKey: key}
}

func (r Recipient) String() string {
	if r.Public {
		return "Public"
	}
	return fmt.Sprintf("Account(%s)", r.AccountKey)
}

// DeriveHeaders builds the amqp.Table published with an Interaction:
// v-from-acct-{originator}=true, v-to-public=true if any recipient is
// Public, and v-to-acct-{key}=true per Account recipient.
func DeriveHeaders(originatorKey string, recipients []Recipient) amqp.Table {
	h := amqp.Table{HeaderFromAcct(originatorKey): true}
	for _, r := range recipients {
		if r.Public {
			h[HeaderToPublic] = true
		} else {
			h[HeaderToAcct(r.AccountKey)] = true
		}
	}
	return h
}

// ListenFilter builds the binding arguments for an interaction listener:
// the union of v-from-acct-{k} for each from key,
// v-to-public if to contains Public, and v-to-acct-{k} per Account
// recipient in to. x-match is set to "any" only if at least one filter key
// was added; an empty filter set matches everything.
func ListenFilter(from []string, to []Recipient) amqp.Table {
	h := amqp.Table{}
	for _, k := range from {
		h[HeaderFromAcct(k)] = true
	}
	for _, r := range to {
		if r.Public {
			h[HeaderToPublic] = true
		} else {
			h[HeaderToAcct(r.AccountKey)] = true
		}
	}
	if len(h) > 0 {
		h["x-match"] = "any"
	}
	return h
}
