package client

import (
	"slices"
	"time"

	"github.com/ARUMANDESU/validation"

	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/validationx"
)

var (
	ErrUnknownClient         = errorx.NewInvalidRequest().WithKey("client_unknown")
	ErrRedirectNotRegistered = errorx.NewInvalidRequest().WithKey("client_redirect_not_registered")
)

// Client is a relying party allowed to request logins.
type Client struct {
	id           string
	name         string
	redirectURIs []string
	createdAt    time.Time
}

type RehydrateArgs struct {
	ID           string
	Name         string
	RedirectURIs []string
	CreatedAt    time.Time
}

type NewArgs struct {
	ID           string
	Name         string
	RedirectURIs []string
}

func New(args NewArgs) (*Client, error) {
	err := validation.ValidateStruct(&args,
		validation.Field(&args.ID, validationx.ClientIDRules...),
		validation.Field(&args.Name, validation.Length(0, 255)),
		validation.Field(&args.RedirectURIs, validation.Required, validation.Each(validationx.RedirectURIRules...)),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		id:           args.ID,
		name:         args.Name,
		redirectURIs: slices.Compact(slices.Clone(args.RedirectURIs)),
		createdAt:    time.Now().UTC(),
	}, nil
}

func Rehydrate(args RehydrateArgs) *Client {
	return &Client{
		id:           args.ID,
		name:         args.Name,
		redirectURIs: slices.Clone(args.RedirectURIs),
		createdAt:    args.CreatedAt,
	}
}

func (c *Client) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Client) RedirectURIs() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.redirectURIs)
}

func (c *Client) CreatedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.createdAt
}

// CheckRedirect requires uri to equal one of the registered redirect URIs exactly.
func (c *Client) CheckRedirect(uri string) error {
	if c == nil {
		return ErrUnknownClient
	}
	if !slices.Contains(c.redirectURIs, uri) {
		return ErrRedirectNotRegistered.WithArgs(map[string]any{"ClientID": c.id})
	}
	return nil
}
