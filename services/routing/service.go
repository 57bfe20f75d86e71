package routing

import (
	"fmt"

	"github.com/agentbooks/portal-gateway/config"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
)

// Destination is the portal a user is sent to after authentication
type Destination struct {
	Audience models.Audience
	Origin   string
}

// Resolver maps roles to portal origins
type Resolver struct {
	origins map[models.Audience]string
}

// NewResolver creates a Resolver from the configured portal origins
func NewResolver(portals config.PortalsConfig) *Resolver {
	return &Resolver{
		origins: map[models.Audience]string{
			models.AudiencePractice: portals.PracticeURL,
			models.AudienceClient:   portals.ClientURL,
		},
	}
}

// ResolveDestination picks the portal for a role. The requested audience is only
// honored when it is the role's own audience; it never overrides the role.
// A role outside the audience table is an UnknownRole error.
func (r *Resolver) ResolveDestination(role models.Role, requested models.Audience) (Destination, error) {
	audience, ok := role.Audience()
	if !ok {
		return Destination{}, services.NewDomainError(
			services.ErrorTypeUnknownRole,
			services.ErrUnknownRole.Message,
			fmt.Errorf("role %q", role),
		).WithDetail("role", string(role))
	}

	chosen := audience
	if requested != models.AudienceNone && requested == audience {
		chosen = requested
	}

	return Destination{Audience: chosen, Origin: r.origins[chosen]}, nil
}

// Origin returns the configured origin of an audience
func (r *Resolver) Origin(audience models.Audience) string {
	return r.origins[audience]
}
