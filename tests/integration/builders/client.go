package builders

import (
	"time"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/tests/integration/fixtures"
)

type ClientBuilder struct {
	id           string
	name         string
	redirectURIs []string
	createdAt    time.Time
}

func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		id:           fixtures.ClientID,
		name:         fixtures.ClientName,
		redirectURIs: []string{fixtures.RedirectURI},
		createdAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (b *ClientBuilder) WithID(id string) *ClientBuilder {
	b.id = id
	return b
}

func (b *ClientBuilder) WithName(name string) *ClientBuilder {
	b.name = name
	return b
}

func (b *ClientBuilder) WithRedirectURIs(uris ...string) *ClientBuilder {
	b.redirectURIs = uris
	return b
}

func (b *ClientBuilder) Build() *client.Client {
	return client.Rehydrate(client.RehydrateArgs{
		ID:           b.id,
		Name:         b.name,
		RedirectURIs: b.redirectURIs,
		CreatedAt:    b.createdAt,
	})
}
