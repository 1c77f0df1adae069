package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"
)

const workspaceIdContextKey = "workspaceId"

// APIKeyAuthMiddleware validates the bearer-style X-API-Key header (spec
// §6): split the presented token into its first APIKeyPrefixLength
// characters and the remainder, look the prefix up, then bcrypt-compare the
// remainder against the stored hash. On success the key's WorkspaceId is
// stashed in the gin context so handlers never need to trust a
// client-supplied workspace id.
func (ctrl *Controller) APIKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-API-Key")
		if len(token) <= domain.APIKeyPrefixLength {
			ctrl.ErrorHandler(c, http.StatusUnauthorized, errors.New("missing or malformed X-API-Key header"))
			c.Abort()
			return
		}
		prefix, secret := token[:domain.APIKeyPrefixLength], token[domain.APIKeyPrefixLength:]

		key, err := ctrl.Storage.GetAPIKeyByPrefix(c.Request.Context(), prefix)
		if err != nil {
			ctrl.ErrorHandler(c, http.StatusUnauthorized, errors.New("invalid API key"))
			c.Abort()
			return
		}
		if !key.IsActive {
			ctrl.ErrorHandler(c, http.StatusUnauthorized, errors.New("API key has been revoked"))
			c.Abort()
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(key.HashedSecret), []byte(secret)); err != nil {
			ctrl.ErrorHandler(c, http.StatusUnauthorized, errors.New("invalid API key"))
			c.Abort()
			return
		}

		c.Set(workspaceIdContextKey, key.WorkspaceId)
		c.Next()
	}
}

// workspaceId returns the authenticated caller's workspace, set by
// APIKeyAuthMiddleware. Every route under /v1 passes through that
// middleware, so this is always present by the time a handler runs.
func workspaceId(c *gin.Context) string {
	v, _ := c.Get(workspaceIdContextKey)
	s, _ := v.(string)
	return s
}

type CreateAPIKeyRequest struct {
	Label string `json:"label"`
}

type CreateAPIKeyResponse struct {
	domain.APIKey
	Token string `json:"token"`
}

// MarshalJSON writes the key's fields plus "token". Without it the embedded
// domain.APIKey's MarshalJSON is promoted and Token is left out.
func (r CreateAPIKeyResponse) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	keyJSON, err := json.Marshal(r.APIKey)
	if err == nil {
		err = json.Unmarshal(keyJSON, &fields)
	}
	if err != nil {
		return nil, err
	}
	fields["token"], _ = json.Marshal(r.Token)
	return json.Marshal(fields)
}

// CreateAPIKeyHandler mints a new token of the form {prefix}{urlsafe
// base64}, bcrypt-hashes the remainder for storage, and returns the
// plaintext token exactly once (spec §6: "Key format {prefix}{urlsafe-base64}
// ... the remainder is verified against a hashed store").
func (ctrl *Controller) CreateAPIKeyHandler(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	prefix := token[:domain.APIKeyPrefixLength]
	secret := token[domain.APIKeyPrefixLength:]

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	key := domain.APIKey{
		Id:          "key_" + ksuid.New().String(),
		WorkspaceId: workspaceId(c),
		Prefix:      prefix,
		HashedSecret: string(hashed),
		Label:       req.Label,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ctrl.Storage.PersistAPIKey(c.Request.Context(), key); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{APIKey: key, Token: token})
}

// RevokeAPIKeyHandler sets is_active=false (spec §6 "Revocation sets
// is_active=false").
func (ctrl *Controller) RevokeAPIKeyHandler(c *gin.Context) {
	if err := ctrl.Storage.RevokeAPIKey(c.Request.Context(), workspaceId(c), c.Param("id")); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
		} else {
			ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}
