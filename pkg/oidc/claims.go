package oidc

import (
	"encoding/json"
	"fmt"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// ClaimNames maps each user claim to the name the identity provider uses
// for it in user-info responses.
type ClaimNames struct {
	Sub           string `json:"sub" yaml:"sub" env:"SUB" envDefault:"sub"`
	Name          string `json:"name" yaml:"name" env:"NAME" envDefault:"name"`
	Email         string `json:"email" yaml:"email" env:"EMAIL" envDefault:"email"`
	Roles         string `json:"roles" yaml:"roles" env:"ROLES" envDefault:"app.quickcase.claims/roles"`
	Organisations string `json:"organisations" yaml:"organisations" env:"ORGANISATIONS" envDefault:"app.quickcase.claims/organisations"`
}

// DefaultClaimNames returns the claim names used when none are configured.
func DefaultClaimNames() ClaimNames {
	return ClaimNames{
		Sub:           "sub",
		Name:          "name",
		Email:         "email",
		Roles:         "app.quickcase.claims/roles",
		Organisations: "app.quickcase.claims/organisations",
	}
}

// ClaimsConfig configures claim name mapping. Prefix is prepended to the
// private claims (roles and organisations) only; the standard OIDC claims
// sub, name and email are never prefixed.
type ClaimsConfig struct {
	Prefix string     `json:"prefix" yaml:"prefix" env:"PREFIX"`
	Names  ClaimNames `json:"names" yaml:"names" env:"NAMES"`
}

// Resolve returns the effective claim names with the prefix applied.
func (c ClaimsConfig) Resolve() ClaimNames {
	return ClaimNames{
		Sub:           c.Names.Sub,
		Name:          c.Names.Name,
		Email:         c.Names.Email,
		Roles:         c.Prefix + c.Names.Roles,
		Organisations: c.Prefix + c.Names.Organisations,
	}
}

// Validate rejects empty claim names.
func (c ClaimsConfig) Validate() error {
	fields := []struct{ path, value string }{
		{"claims.names.sub", c.Names.Sub},
		{"claims.names.name", c.Names.Name},
		{"claims.names.email", c.Names.Email},
		{"claims.names.roles", c.Names.Roles},
		{"claims.names.organisations", c.Names.Organisations},
	}
	for _, f := range fields {
		if f.value == "" {
			return sserr.Newf(sserr.CodeValidationRequired,
				"oidc: configuration property %q must not be empty", f.path)
		}
	}
	return nil
}

// UserClaims is the normalized view of a user-info response. Fields whose
// source claim is absent or null keep their defaults: empty strings, no
// roles and no organisations.
type UserClaims struct {
	Sub           string                    `json:"sub,omitempty"`
	Name          string                    `json:"name,omitempty"`
	Email         string                    `json:"email,omitempty"`
	Roles         []string                  `json:"roles"`
	Organisations map[string]map[string]any `json:"organisations"`
}

// ExtractUserClaims normalizes a raw user-info response using names.
//
// Roles are read from a comma-separated string (empty segments dropped) or
// a JSON array of strings. Organisations are read from a JSON object
// encoded as a string, or from an object directly. An organisations value
// that is not a JSON object fails the whole extraction.
func ExtractUserClaims(info map[string]any, names ClaimNames) (*UserClaims, error) {
	claims := &UserClaims{
		Sub:           stringClaim(info[names.Sub]),
		Name:          stringClaim(info[names.Name]),
		Email:         stringClaim(info[names.Email]),
		Roles:         []string{},
		Organisations: map[string]map[string]any{},
	}

	if raw := info[names.Roles]; raw != nil {
		roles, err := parseRoles(raw)
		if err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeAuthenticationUserInfo,
				"oidc: claim %q is not a valid roles value", names.Roles)
		}
		claims.Roles = roles
	}

	if raw := info[names.Organisations]; raw != nil {
		orgs, err := parseOrganisations(raw)
		if err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeAuthenticationUserInfo,
				"oidc: claim %q is not a valid organisations value", names.Organisations)
		}
		claims.Organisations = orgs
	}

	return claims, nil
}

func stringClaim(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func parseRoles(raw any) ([]string, error) {
	roles := []string{}
	switch v := raw.(type) {
	case string:
		for _, r := range strings.Split(v, ",") {
			if r != "" {
				roles = append(roles, r)
			}
		}
	case []any:
		for _, r := range v {
			s, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("role entry has type %T", r)
			}
			roles = append(roles, s)
		}
	case []string:
		roles = append(roles, v...)
	default:
		return nil, fmt.Errorf("unsupported type %T", raw)
	}
	return roles, nil
}

func parseOrganisations(raw any) (map[string]map[string]any, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}

	var orgs map[string]map[string]any
	if err := json.Unmarshal(data, &orgs); err != nil {
		return nil, err
	}
	if orgs == nil {
		orgs = map[string]map[string]any{}
	}
	return orgs, nil
}
