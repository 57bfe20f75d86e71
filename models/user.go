package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role represents the role a user holds on the accounting platform
type Role string

const (
	RoleClient        Role = "client"
	RolePracticeOwner Role = "practice_owner"
	RoleAccountant    Role = "accountant"
	RoleBookkeeper    Role = "bookkeeper"
	RolePayroll       Role = "payroll"
)

// Audience is the portal population a role belongs to
type Audience string

const (
	AudienceNone     Audience = ""
	AudienceClient   Audience = "client"
	AudiencePractice Audience = "practice"
)

// roleAudiences is the fixed role -> audience table. A role missing here has no portal.
var roleAudiences = map[Role]Audience{
	RoleClient:        AudienceClient,
	RolePracticeOwner: AudiencePractice,
	RoleAccountant:    AudiencePractice,
	RoleBookkeeper:    AudiencePractice,
	RolePayroll:       AudiencePractice,
}

// Roles returns every known role
func Roles() []Role {
	return []Role{RoleClient, RolePracticeOwner, RoleAccountant, RoleBookkeeper, RolePayroll}
}

// Audience returns the audience for the role and false when the role is unknown
func (r Role) Audience() (Audience, bool) {
	a, ok := roleAudiences[r]
	return a, ok
}

// IsValid reports whether the role appears in the audience table
func (r Role) IsValid() bool {
	_, ok := roleAudiences[r]
	return ok
}

// ParseAudience parses a requested destination. Empty input means no preference.
func ParseAudience(s string) (Audience, error) {
	switch Audience(strings.ToLower(strings.TrimSpace(s))) {
	case AudienceNone:
		return AudienceNone, nil
	case AudienceClient:
		return AudienceClient, nil
	case AudiencePractice:
		return AudiencePractice, nil
	default:
		return AudienceNone, fmt.Errorf("unknown destination: %q", s)
	}
}

// ID is an identifier issued by the record API. The API emits ids either as JSON
// numbers or strings; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts numbers, strings and null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the textual id
func (id ID) String() string {
	return string(id)
}

// Identity is the authoritative user profile owned by the Credential Store
type Identity struct {
	UserID     ID     `json:"user_id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	PracticeID ID     `json:"practice_id"`
	ClientIDs  []ID   `json:"client_ids"`
}

// Validate checks that the identity carries the fields a session is derived from
func (i *Identity) Validate() error {
	if i.UserID == "" {
		return fmt.Errorf("identity missing user_id")
	}
	if i.Role == "" {
		return fmt.Errorf("identity missing role")
	}
	return nil
}
