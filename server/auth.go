package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Role identifies the capability class of an authenticated caller.
type Role string

const (
	// RoleAdmin may mutate protocol configuration.
	RoleAdmin Role = "admin"
	// RoleMinter may mint payment tickets.
	RoleMinter Role = "minter"
	// RoleRelayer may submit swaps, quotes, and take claims.
	RoleRelayer Role = "relayer"
)

// Principal describes an authenticated actor. Relayers carry the on-protocol
// address their token maps to.
type Principal struct {
	Role    Role
	Address common.Address
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// AuthConfig maps bearer tokens to capabilities.
type AuthConfig struct {
	AdminToken    string
	MinterToken   string
	RelayerTokens map[string]common.Address
}

// Authenticator verifies bearer tokens before requests reach handlers.
type Authenticator struct {
	adminToken  string
	minterToken string
	relayers    map[string]common.Address
}

// NewAuthenticator constructs an authenticator from configuration.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	admin := strings.TrimSpace(cfg.AdminToken)
	minter := strings.TrimSpace(cfg.MinterToken)
	relayers := make(map[string]common.Address, len(cfg.RelayerTokens))
	for token, addr := range cfg.RelayerTokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		relayers[token] = addr
	}
	if admin == "" && minter == "" && len(relayers) == 0 {
		return nil, fmt.Errorf("at least one bearer token must be configured")
	}
	return &Authenticator{adminToken: admin, minterToken: minter, relayers: relayers}, nil
}

// Require enforces that the caller holds one of the listed roles.
func (a *Authenticator) Require(next http.Handler, roles ...Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		principal := a.authenticate(r)
		if principal == nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		allowed := len(roles) == 0
		for _, role := range roles {
			if principal.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) *Principal {
	if a == nil || r == nil {
		return nil
	}
	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil
	}
	provided := []byte(token)
	if a.adminToken != "" && subtle.ConstantTimeCompare(provided, []byte(a.adminToken)) == 1 {
		return &Principal{Role: RoleAdmin}
	}
	if a.minterToken != "" && subtle.ConstantTimeCompare(provided, []byte(a.minterToken)) == 1 {
		return &Principal{Role: RoleMinter}
	}
	for candidate, addr := range a.relayers {
		if subtle.ConstantTimeCompare(provided, []byte(candidate)) == 1 {
			return &Principal{Role: RoleRelayer, Address: addr}
		}
	}
	return nil
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
