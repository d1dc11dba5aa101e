package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/duochat/duochat/internal/http/middleware"
)

// SessionCookie is the cookie carrying the signed session token. The
// websocket handler accepts the same token via this cookie, a Bearer
// header, or a query parameter.
const SessionCookie = "duochat_session"

// CodeVerifier checks a submitted one-time code against a shared secret.
type CodeVerifier interface {
	Verify(secret, code string) bool
}

// TokenIssuer mints a signed session token for an authenticated identity.
type TokenIssuer interface {
	Issue(identity string) (string, time.Time, error)
}

// LoginRequest is the login payload: a configured identity plus the
// six-digit code from that identity's authenticator.
type LoginRequest struct {
	Identity string `json:"identity"`
	Code     string `json:"code"`
}

// LoginResponse is returned on successful authentication. The token is
// also set as a cookie so browser clients need no extra wiring.
type LoginResponse struct {
	Token     string `json:"token"`
	Identity  string `json:"identity"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthHandler authenticates the two configured identities via TOTP and
// issues session tokens.
type AuthHandler struct {
	secrets      map[string]string
	verifier     CodeVerifier
	issuer       TokenIssuer
	cookieSecure bool
}

func NewAuthHandler(secrets map[string]string, verifier CodeVerifier, issuer TokenIssuer, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		secrets:      secrets,
		verifier:     verifier,
		issuer:       issuer,
		cookieSecure: cookieSecure,
	}
}

// Login handles POST /api/v1/login.
//
// Every authentication failure returns the same 401 envelope: an unknown
// identity, a wrong code, and a misconfigured secret are indistinguishable
// to the caller. Misconfiguration is still logged server-side so operators
// can fix the provisioning.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.Identity == "" || req.Code == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "identity and code are required")
		return
	}

	secret, known := h.secrets[req.Identity]
	if !known {
		// Run the verifier against an empty secret anyway so unknown
		// identities cost roughly the same as wrong codes.
		h.verifier.Verify("", req.Code)
		h.unauthorized(c, req.Identity)
		return
	}

	if !h.verifier.Verify(secret, req.Code) {
		h.unauthorized(c, req.Identity)
		return
	}

	tok, expiresAt, err := h.issuer.Issue(req.Identity)
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("identity", req.Identity).Msg("token issuance failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Could not create session")
		return
	}

	maxAge := int(time.Until(expiresAt) / time.Second)
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, tok, maxAge, "/", "", h.cookieSecure, true)

	ok(c, http.StatusOK, LoginResponse{
		Token:     tok,
		Identity:  req.Identity,
		ExpiresAt: expiresAt.Unix(),
	})
}

func (h *AuthHandler) unauthorized(c *gin.Context, identity string) {
	lg := middleware.LoggerFrom(c)
	lg.Warn().Str("identity", identity).Msg("login rejected")
	fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid identity or code")
}
