package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"otcswap/crypto"
	"otcswap/observability/logging"
)

// ScopeAdmin must be present on tokens calling the admin routes.
const ScopeAdmin = "otc:admin"

// HeaderCaller carries the caller address when authentication is disabled.
const HeaderCaller = "X-OTC-Caller"

type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const (
	contextKeyCaller contextKey = "otc.caller"
	contextKeyScopes contextKey = "otc.scopes"
)

// Caller is the authenticated account behind a request.
type Caller struct {
	Address [20]byte
	Scopes  []string
}

// HasScope reports whether the caller was granted scope. Callers admitted
// while authentication is disabled hold every scope.
func (c Caller) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// CallerFromContext returns the caller stored by the authenticator.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKeyCaller).(Caller)
	return c, ok
}

// WithCaller attaches caller to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKeyCaller, c)
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Middleware resolves the caller for every request. Requests without a
// resolvable caller are rejected; the read-only routes mount without it.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, status, err := a.resolve(r)
			if err != nil {
				a.logger.Warn("auth rejected request",
					"path", r.URL.Path,
					logging.MaskField("authorization", r.Header.Get("Authorization")),
					"error", err)
				writeAuthError(w, status, err.Error())
				return
			}
			for _, scope := range requiredScopes {
				if !caller.HasScope(scope) {
					writeAuthError(w, http.StatusForbidden, "insufficient scope")
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func (a *Authenticator) resolve(r *http.Request) (Caller, int, error) {
	if !a.cfg.Enabled {
		raw := strings.TrimSpace(r.Header.Get(HeaderCaller))
		if raw == "" {
			return Caller{}, http.StatusUnauthorized, errors.New("missing " + HeaderCaller + " header")
		}
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return Caller{}, http.StatusBadRequest, errors.New("invalid caller address")
		}
		return Caller{Address: addr, Scopes: []string{"*"}}, 0, nil
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return Caller{}, http.StatusUnauthorized, errors.New("missing bearer token")
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		a.logger.Debug("token validation failed", logging.MaskField("bearer", tokenString), "error", err)
		return Caller{}, http.StatusUnauthorized, errors.New("invalid token")
	}
	subject, _ := claims["sub"].(string)
	addr, err := crypto.ParseAddress(subject)
	if err != nil {
		return Caller{}, http.StatusUnauthorized, errors.New("token subject is not an address")
	}
	return Caller{Address: addr, Scopes: extractScopes(claims, a.cfg.ScopeClaim)}, 0, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

// IssueToken signs an HS256 token for subject. It backs the CLI's dev token
// command and the tests.
func IssueToken(secret, issuer, audience, subject string, scopes []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"Unauthorized","message":"` + msg + `"}}`))
}
