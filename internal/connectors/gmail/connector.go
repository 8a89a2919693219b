package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"listingqty/internal"
	"listingqty/internal/config"
	"listingqty/internal/connectors"
)

const provider = "gmail"

type Connector struct {
	service *gmail.Service
	now     func() time.Time
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc, now: time.Now}, nil
}

var _ connectors.MailConnector = (*Connector)(nil)

func (c *Connector) Provider() string { return provider }

// FetchInbox pages through the label until q.Max message ids are collected,
// then downloads each message in raw form.
func (c *Connector) FetchInbox(ctx context.Context, q connectors.FetchQuery) ([]internal.FetchedMailMessage, error) {
	ids := []string{}
	pageToken := ""
	for len(ids) < q.Max {
		call := c.service.Users.Messages.List("me").LabelIds(q.Label).MaxResults(int64(q.Max - len(ids))).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gmail list: %w", err)
		}
		for _, ref := range resp.Messages {
			if ref.Id != "" {
				ids = append(ids, ref.Id)
			}
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for _, id := range ids {
		rawResp, err := c.service.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", id, err)
		}
		if rawResp.Raw == "" {
			continue
		}

		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(id, rawBytes, c.now()))
	}

	return out, nil
}

// toFetched reads the envelope headers from the raw message. The Gmail id
// stands in for a missing Message-ID and now for an unreadable Date.
func toFetched(id string, raw []byte, now time.Time) internal.FetchedMailMessage {
	msg := internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  id,
		ReceivedAt: now.UTC().Format(time.RFC3339),
		Raw:        raw,
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return msg
	}
	header := parsed.Header
	if v := strings.TrimSpace(header.Get("Message-ID")); v != "" {
		msg.MessageID = v
	}
	msg.Subject = decodeHeader(header.Get("Subject"))
	msg.From = decodeHeader(header.Get("From"))
	if t, err := header.Date(); err == nil {
		msg.ReceivedAt = t.UTC().Format(time.RFC3339)
	}
	return msg
}

func decodeHeader(v string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
