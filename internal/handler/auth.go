package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qrface/internal/auth"
	"qrface/internal/profile"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Name      string `json:"name" binding:"required"`
	StudentID string `json:"npm"`
	Major     string `json:"jurusan"`
	Role      string `json:"role"`
}

// Register creates an account. Students register themselves; lecturer and
// admin accounts need an admin bearer token.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleStudent
	}
	if !auth.ValidRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if req.Role != auth.RoleStudent {
		claims, ok := h.optionalClaims(c)
		if !ok || claims.Role != auth.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "only admins can create " + req.Role + " accounts"})
			return
		}
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.Role == auth.RoleStudent && req.StudentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "npm is required for students"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.Profiles.Create(c.Request.Context(), profile.Profile{
		Email:     req.Email,
		StudentID: req.StudentID,
		Name:      req.Name,
		Role:      req.Role,
		Major:     req.Major,
	}, hash)
	if errors.Is(err, profile.ErrExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "email or npm already registered"})
		return
	}
	if err != nil {
		log.Printf("register %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	tokens, ok := h.issueTokens(c, p)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"profile": p, "tokens": tokens})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges credentials for a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, hash, err := h.Profiles.Credentials(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		log.Printf("login %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if err != nil || auth.CheckPassword(hash, req.Password) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrBadCredentials.Error()})
		return
	}

	tokens, ok := h.issueTokens(c, p)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "tokens": tokens})
}

// Refresh rotates a refresh token. Each refresh token works once.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, err := auth.Parse(req.RefreshToken, h.Auth.SigningKey, h.Auth.Issuer, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if h.Tokens != nil {
		if err := h.Tokens.Consume(c.Request.Context(), req.RefreshToken); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
			return
		}
	}
	p, err := h.Profiles.GetByEmail(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		return
	}
	tokens, ok := h.issueTokens(c, p)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Me returns the identity carried by the access token.
func (h *Handler) Me(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	c.JSON(http.StatusOK, claims.Identity())
}

func (h *Handler) issueTokens(c *gin.Context, p profile.Profile) (auth.TokenPair, bool) {
	tokens, err := auth.Issue(auth.Identity{Email: p.Email, StudentID: p.StudentID, Role: p.Role},
		h.Auth.Issuer, h.Auth.SigningKey, h.Auth.AccessTTL, h.Auth.RefreshTTL)
	if err != nil {
		log.Printf("issue tokens for %s: %v", p.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return auth.TokenPair{}, false
	}
	if h.Tokens != nil {
		if err := h.Tokens.Save(c.Request.Context(), p.Email, tokens.RefreshToken, tokens.RefreshExp); err != nil {
			log.Printf("save refresh token for %s: %v", p.Email, err)
		}
	}
	return tokens, true
}

func (h *Handler) optionalClaims(c *gin.Context) (auth.Claims, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return auth.Claims{}, false
	}
	claims, err := auth.Parse(strings.TrimSpace(authz[len("bearer "):]), h.Auth.SigningKey, h.Auth.Issuer, auth.KindAccess)
	return claims, err == nil
}
