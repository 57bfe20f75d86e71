package routing

import (
	"testing"

	"github.com/agentbooks/portal-gateway/config"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	practiceOrigin = "https://practice.agentbooks.com"
	clientOrigin   = "https://client.agentbooks.com"
)

func newTestResolver() *Resolver {
	return NewResolver(config.PortalsConfig{
		AuthURL:     "https://auth.agentbooks.com",
		PracticeURL: practiceOrigin,
		ClientURL:   clientOrigin,
	})
}

func TestResolver_NeverLeavesRoleAudience(t *testing.T) {
	resolver := newTestResolver()
	requests := []models.Audience{models.AudienceNone, models.AudienceClient, models.AudiencePractice}

	for _, role := range models.Roles() {
		want, ok := role.Audience()
		require.True(t, ok)

		for _, requested := range requests {
			t.Run(string(role)+"/"+string(requested), func(t *testing.T) {
				dest, err := resolver.ResolveDestination(role, requested)

				require.NoError(t, err)
				assert.Equal(t, want, dest.Audience)
				assert.Equal(t, resolver.Origin(want), dest.Origin)
			})
		}
	}
}

func TestResolver_ResolveDestination(t *testing.T) {
	resolver := newTestResolver()

	tests := []struct {
		name       string
		role       models.Role
		requested  models.Audience
		wantOrigin string
	}{
		{"practice owner without request", models.RolePracticeOwner, models.AudienceNone, practiceOrigin},
		{"client requesting practice", models.RoleClient, models.AudiencePractice, clientOrigin},
		{"client requesting client", models.RoleClient, models.AudienceClient, clientOrigin},
		{"accountant requesting client", models.RoleAccountant, models.AudienceClient, practiceOrigin},
		{"bookkeeper requesting practice", models.RoleBookkeeper, models.AudiencePractice, practiceOrigin},
		{"payroll without request", models.RolePayroll, models.AudienceNone, practiceOrigin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := resolver.ResolveDestination(tt.role, tt.requested)

			require.NoError(t, err)
			assert.Equal(t, tt.wantOrigin, dest.Origin)
		})
	}
}

func TestResolver_UnknownRole(t *testing.T) {
	resolver := newTestResolver()

	for _, role := range []models.Role{"", "admin", "superuser", "CLIENT"} {
		t.Run(string(role), func(t *testing.T) {
			dest, err := resolver.ResolveDestination(role, models.AudiencePractice)

			assert.True(t, services.IsUnknownRoleError(err))
			assert.Empty(t, dest.Origin)
		})
	}
}
