package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"qrface/internal/auth"
	"qrface/internal/biometric"
	"qrface/internal/profile"
)

const maxPhotoBytes = 5 << 20

// GetProfile returns a profile by email. Students may only read their own.
func (h *Handler) GetProfile(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role == auth.RoleStudent && !strings.EqualFold(claims.Subject, email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	p, err := h.Profiles.GetByEmail(c.Request.Context(), email)
	if errors.Is(err, profile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		log.Printf("get profile %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProfile applies a multipart profile update: name, jurusan,
// face_descriptor and a photo file. A descriptor replaces the enrolled one.
func (h *Handler) UpdateProfile(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	if email == "" {
		email = strings.ToLower(claims.Subject)
	}
	if claims.Role != auth.RoleAdmin && !strings.EqualFold(claims.Subject, email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	current, err := h.Profiles.GetByEmail(c.Request.Context(), email)
	if errors.Is(err, profile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		log.Printf("update profile %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
		return
	}

	var changes profile.Changes
	if v, ok := c.GetPostForm("name"); ok && strings.TrimSpace(v) != "" {
		changes.Name = &v
	}
	if v, ok := c.GetPostForm("jurusan"); ok {
		changes.Major = &v
	}
	if v, ok := c.GetPostForm("face_descriptor"); ok {
		emb, err := biometric.ParseDescriptor(v)
		if err != nil || len(emb) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "face_descriptor must be a non-empty JSON number array"})
			return
		}
		desc, _ := biometric.EncodeDescriptor(emb)
		now := time.Now().UTC()
		changes.FaceDescriptor = &desc
		changes.FaceEnrolledAt = &now
	}

	if file, header, err := c.Request.FormFile("photo"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read photo"})
			return
		}
		if len(data) > maxPhotoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return
		}
		if h.Photos != nil {
			publicID := current.StudentID
			if publicID == "" {
				publicID = current.ID
			}
			res, err := h.Photos.UploadBytes(c.Request.Context(), data, header.Filename, publicID)
			if err != nil {
				log.Printf("photo upload for %s: %v", email, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
				return
			}
			changes.PhotoURL = &res.SecureURL
		}
	}

	p, err := h.Profiles.Apply(c.Request.Context(), email, changes)
	if err != nil {
		log.Printf("apply profile %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile update failed"})
		return
	}
	if changes.FaceDescriptor != nil && h.Metrics != nil {
		h.Metrics.Enrollments.Inc()
	}
	c.JSON(http.StatusOK, p)
}
