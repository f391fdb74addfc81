package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	operatorIDKey = "operatorId"

	// accessTokenParam carries the token on /ws, where browsers cannot set
	// an Authorization header.
	accessTokenParam = "access_token"
)

var (
	errMissingToken = errors.New("missing Authorization header")
	errBadScheme    = errors.New("invalid Authorization header format")
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", errBadScheme
	}
	return token, nil
}

// operatorAuth admits requests carrying a valid operator token.
func (h *Handler) operatorAuth(c *gin.Context) {
	h.authorize(c, false)
}

// streamAuth is operatorAuth that also accepts ?access_token=.
func (h *Handler) streamAuth(c *gin.Context) {
	h.authorize(c, true)
}

func (h *Handler) authorize(c *gin.Context, allowQuery bool) {
	token, err := bearerToken(c.GetHeader("Authorization"))
	if errors.Is(err, errMissingToken) && allowQuery {
		if q := c.Query(accessTokenParam); q != "" {
			token, err = q, nil
		}
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	operatorID, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Infow("operator_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(operatorIDKey, operatorID)
	c.Next()
}
