package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrface/internal/attendance"
	"qrface/internal/auth"
	"qrface/internal/profile"
)

// SubmitAttendance records a check-in the kiosk already verified. The
// reply is always {success, message}.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var req attendance.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, attendance.Response{Message: "invalid request: " + err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if claims.StudentID != "" && claims.StudentID != req.StudentID {
		c.JSON(http.StatusForbidden, attendance.Response{Message: "nim does not match the signed-in student"})
		return
	}

	resp, err := h.Attendance.Submit(c.Request.Context(), req)
	if err != nil {
		log.Printf("submit attendance %s %s/%d: %v", req.StudentID, req.SessionID, req.MeetingNumber, err)
		c.JSON(http.StatusInternalServerError, attendance.Response{Message: "attendance could not be recorded"})
		return
	}
	switch {
	case resp.Success:
		c.JSON(http.StatusOK, resp)
	case resp.Message == attendance.MsgAlreadyRecorded:
		c.JSON(http.StatusConflict, resp)
	default:
		c.JSON(http.StatusUnprocessableEntity, resp)
	}
}

// ListAttendance returns stored records filtered by id_jadwal, nim and pertemuan.
// An unknown nim is a 404 rather than an empty list.
func (h *Handler) ListAttendance(c *gin.Context) {
	f := attendance.Filter{
		SessionID: c.Query("id_jadwal"),
		StudentID: c.Query("nim"),
	}
	if f.StudentID != "" {
		_, err := h.Profiles.GetByStudentID(c.Request.Context(), f.StudentID)
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		if err != nil {
			log.Printf("list attendance: student %s: %v", f.StudentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
	}
	f.MeetingNumber, _ = strconv.Atoi(c.Query("pertemuan"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.Records.List(c.Request.Context(), f)
	if err != nil {
		log.Printf("list attendance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
