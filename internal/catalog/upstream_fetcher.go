package catalog

import (
	"context"

	"github.com/wolfman30/agendmed/internal/upstream"
)

type servicesClient interface {
	Services(ctx context.Context, tenantID string) ([]upstream.ServiceDTO, error)
}

// UpstreamFetcher adapts the tenant API client to Fetcher.
type UpstreamFetcher struct {
	client servicesClient
}

func NewUpstreamFetcher(client servicesClient) *UpstreamFetcher {
	if client == nil {
		panic("catalog: upstream client cannot be nil")
	}
	return &UpstreamFetcher{client: client}
}

func (f *UpstreamFetcher) FetchServices(ctx context.Context, tenantID string) ([]ServiceOffering, error) {
	dtos, err := f.client.Services(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceOffering, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, ServiceOffering{
			ID:              d.ID.String(),
			Name:            d.Name,
			DurationMinutes: d.Duration,
			Price:           d.Price,
		})
	}
	return out, nil
}
