package postgres

import (
	"time"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
)

type ClientDTO struct {
	ID           string
	Name         string
	RedirectURIs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func DomainToClientDTO(c *client.Client) ClientDTO {
	return ClientDTO{
		ID:           c.ID(),
		Name:         c.Name(),
		RedirectURIs: c.RedirectURIs(),
		CreatedAt:    c.CreatedAt(),
	}
}

func ClientToDomain(dto ClientDTO) *client.Client {
	return client.Rehydrate(client.RehydrateArgs{
		ID:           dto.ID,
		Name:         dto.Name,
		RedirectURIs: dto.RedirectURIs,
		CreatedAt:    dto.CreatedAt,
	})
}
