package gateway

import (
	"context"

	"github.com/pkg/errors"

	"github.com/prismsocial/prism-server/client"
	"github.com/prismsocial/prism-server/internal/domain"
)

// ProviderGateway resolves library listings through the storage
// provider client, translating transport failures into the domain
// error the reconciliation engine expects.
type ProviderGateway struct {
	client *client.Client
}

func NewProviderGateway(cl *client.Client) *ProviderGateway {
	return &ProviderGateway{client: cl}
}

func (g *ProviderGateway) ListLibraryItems(ctx context.Context, lib domain.MediaLibrary) ([]domain.ProviderItem, error) {
	items, err := g.client.ListLibraryItems(ctx, lib)
	if err != nil {
		return nil, domain.ProviderUnavailableError{
			Library: lib.ID,
			Err:     errors.Wrap(err, "ProviderGateway.ListLibraryItems"),
		}
	}
	return items, nil
}
