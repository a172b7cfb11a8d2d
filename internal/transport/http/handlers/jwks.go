package handlers

import (
	"encoding/base64"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pofara/identity-service/internal/infra/security"
)

const jwksCacheControl = "public, max-age=3600"

// JWKSHandler publishes the public signing keys so resource servers can
// validate access tokens offline.
type JWKSHandler struct {
	keys security.KeyProvider
	kids []string
}

// NewJWKSHandler constructs a JWKS handler exposing the listed key IDs.
func NewJWKSHandler(keys security.KeyProvider, kids ...string) *JWKSHandler {
	return &JWKSHandler{keys: keys, kids: kids}
}

// Keys godoc
// @Summary Retrieve JSON Web Key Set
// @Description Exposes the public keys used to verify access token signatures.
// @Tags Public
// @Produce json
// @Success 200 {object} JWKSResponse
// @Failure 503 {object} ErrorResponse
// @Router /.well-known/jwks.json [get]
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil || len(h.kids) == 0 {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "jwks not available"))
		return
	}

	response := JWKSResponse{Keys: make([]JWKSKey, 0, len(h.kids))}
	for _, kid := range h.kids {
		publicKey, err := h.keys.GetVerificationKey(kid)
		if err != nil {
			continue
		}

		response.Keys = append(response.Keys, JWKSKey{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		})
	}

	if len(response.Keys) == 0 {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "jwks not available"))
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.JSON(http.StatusOK, response)
}
