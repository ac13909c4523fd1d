package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/StagePlayer/internal/config"
)

// Role is what an authenticated caller may do.
type Role string

const (
	// RoleAdmin may do everything, including stopping sounds.
	RoleAdmin Role = "admin"
	// RoleOperator may watch the stage and send input.
	RoleOperator Role = "operator"
)

type credentials struct {
	user, pass string
	role       Role
}

// authConfig is nil or disabled when no admin credentials are configured.
type authConfig struct {
	accounts []credentials
	enabled  bool
}

var auth *authConfig

// InitAuth loads basic auth credentials from PLAYER_ADMIN_USER,
// PLAYER_ADMIN_PASS, PLAYER_OPERATOR_USER and PLAYER_OPERATOR_PASS (each
// also readable from a *_FILE). Without admin credentials every request
// is treated as admin.
func InitAuth() error {
	s, err := config.ResolveSecrets(
		"PLAYER_ADMIN_USER", "PLAYER_ADMIN_PASS",
		"PLAYER_OPERATOR_USER", "PLAYER_OPERATOR_PASS",
	)
	if err != nil {
		return err
	}
	auth = newAuthConfig(s["PLAYER_ADMIN_USER"], s["PLAYER_ADMIN_PASS"],
		s["PLAYER_OPERATOR_USER"], s["PLAYER_OPERATOR_PASS"])
	return nil
}

func newAuthConfig(adminUser, adminPass, operatorUser, operatorPass string) *authConfig {
	cfg := &authConfig{}
	if adminUser == "" || adminPass == "" {
		return cfg
	}
	cfg.enabled = true
	cfg.accounts = append(cfg.accounts, credentials{adminUser, adminPass, RoleAdmin})
	if operatorUser != "" && operatorPass != "" {
		cfg.accounts = append(cfg.accounts, credentials{operatorUser, operatorPass, RoleOperator})
	}
	return cfg
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate returns the caller's role, or "" for bad credentials.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAdmin
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	for _, acct := range auth.accounts {
		if secureCompare(user, acct.user) && secureCompare(pass, acct.pass) {
			return acct.role
		}
	}
	return ""
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="Stage Player"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
