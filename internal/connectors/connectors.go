// Package connectors pulls raw supplier mail into the local store.
package connectors

import (
	"context"

	"listingqty/internal"
)

type FetchQuery struct {
	Label string
	Max   int
}

// MailConnector is a mailbox provider.
type MailConnector interface {
	Provider() string
	FetchInbox(ctx context.Context, q FetchQuery) ([]internal.FetchedMailMessage, error)
}
