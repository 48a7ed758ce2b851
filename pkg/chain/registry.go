package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/config"
)

// Registry resolves a network name to its Gateway. It is built once at
// startup and shared by every component.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry wraps already constructed gateways. Names are case-insensitive.
func NewRegistry(gateways map[string]Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for name, gw := range gateways {
		r.gateways[strings.ToLower(name)] = gw
	}
	return r
}

// DialRegistry dials every configured network. On failure the gateways
// opened so far are closed.
func DialRegistry(ctx context.Context, networks map[string]config.NetworkConfig, logger *zap.Logger) (*Registry, error) {
	r := &Registry{gateways: make(map[string]Gateway, len(networks))}
	for name, cfg := range networks {
		client, err := Dial(ctx, name, cfg, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.gateways[strings.ToLower(name)] = client
	}
	return r, nil
}

// Get returns the gateway for network or ErrUnknownNetwork
func (r *Registry) Get(network string) (Gateway, error) {
	gw, ok := r.gateways[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	return gw, nil
}

// Networks lists the configured network names in sorted order
func (r *Registry) Networks() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every gateway that holds a connection
func (r *Registry) Close() {
	for _, gw := range r.gateways {
		if c, ok := gw.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
