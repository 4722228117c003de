package handler

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrface/internal/qrpayload"
	"qrface/internal/sessions"
)

type openSessionRequest struct {
	SessionID     string `json:"id_jadwal" binding:"required"`
	MeetingNumber int    `json:"pertemuan" binding:"required,gt=0"`
}

// OpenSession issues a fresh check-in code for a meeting. Calling it again
// for the same meeting supersedes the previous code.
func (h *Handler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	issued, err := h.Issuer.Open(c.Request.Context(), req.SessionID, req.MeetingNumber)
	if err != nil {
		log.Printf("open session %s/%d: %v", req.SessionID, req.MeetingNumber, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue code"})
		return
	}
	if h.Metrics != nil {
		h.Metrics.QRIssued.Inc()
	}
	c.JSON(http.StatusCreated, gin.H{
		"qr":         issued.Wire,
		"id_jadwal":  issued.Payload.SessionID,
		"pertemuan":  issued.Payload.MeetingNumber,
		"timestamp":  issued.Payload.IssuedAt,
		"expires_at": issued.Payload.IssuedAt.Add(h.CodeTTL),
		"qr_png_url": "/v1/sessions/" + url.PathEscape(issued.Payload.SessionID) + "/meetings/" + strconv.Itoa(issued.Payload.MeetingNumber) + "/qr.png",
	})
}

// SessionQR renders the live code for a meeting as a PNG.
func (h *Handler) SessionQR(c *gin.Context) {
	meeting, err := strconv.Atoi(c.Param("n"))
	if err != nil || meeting <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meeting number must be a positive integer"})
		return
	}
	size := 256
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 64 && parsed <= 1024 {
			size = parsed
		}
	}
	issued, err := h.Registry.Latest(c.Request.Context(), c.Param("id"), meeting)
	if errors.Is(err, sessions.ErrNotIssued) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live code for this meeting"})
		return
	}
	if err != nil {
		log.Printf("session qr %s/%d: %v", c.Param("id"), meeting, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	png, err := qrpayload.PNG(issued.Wire, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
