package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"fiftybrains/delivery/internal/service"
)

func (h HandlerSet) UploadStatus(c *gin.Context) {
	eligibility, err := h.gate.CheckEligibility(c.Request.Context(), caller(c), c.Param("applicationId"))
	if err != nil {
		h.fail(c, err)
		return
	}

	payload := gin.H{
		"canUpload":         eligibility.CanUpload,
		"message":           eligibility.Message,
		"nextVersionNumber": eligibility.NextVersionNumber,
	}
	if eligibility.Reason != "" {
		payload["reason"] = eligibility.Reason
	}
	respond(c, http.StatusOK, payload)
}

func (h HandlerSet) ListDeliveries(c *gin.Context) {
	result, err := h.deliveries.List(c.Request.Context(), caller(c), c.Param("gigId"), c.Query("applicationId"))
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"applicationId": result.Application.ID,
		"deliveries":    toDeliveryViews(result.Deliveries),
	})
}

type uploadURLRequest struct {
	ApplicationID string `json:"applicationId"`
	FileName      string `json:"fileName"`
}

func (h HandlerSet) DeliveryUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ticket, err := h.deliveries.IssueUploadURL(c.Request.Context(), caller(c), service.UploadURLInput{
		ApplicationID: req.ApplicationID,
		FileName:      req.FileName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"uploadUrl":         ticket.UploadURL,
		"key":               ticket.Key,
		"expiresAt":         ticket.ExpiresAt,
		"nextVersionNumber": ticket.NextVersionNumber,
	})
}

type fileRequest struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// submitRequest accepts the single file fields at the top level as well as
// a files array; both are merged.
type submitRequest struct {
	ApplicationID string          `json:"applicationId"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Notes         string          `json:"notes"`
	FileURL       string          `json:"fileUrl"`
	FileName      string          `json:"fileName"`
	FileSize      int64           `json:"fileSize"`
	MimeType      string          `json:"mimeType"`
	Files         []fileRequest   `json:"files"`
	Deliverables  json.RawMessage `json:"deliverables"`
}

func (r submitRequest) toInput() (service.SubmitInput, error) {
	files := make([]service.FileInput, 0, len(r.Files)+1)
	if r.FileURL != "" {
		files = append(files, service.FileInput{Key: r.FileURL, Name: r.FileName, SizeBytes: r.FileSize, MIMEType: r.MimeType})
	}
	for _, f := range r.Files {
		files = append(files, service.FileInput{Key: f.FileURL, Name: f.FileName, SizeBytes: f.FileSize, MIMEType: f.MimeType})
	}

	deliverables, err := unwrapDeliverables(r.Deliverables)
	if err != nil {
		return service.SubmitInput{}, err
	}

	return service.SubmitInput{
		ApplicationID: r.ApplicationID,
		Title:         r.Title,
		Description:   r.Description,
		Notes:         r.Notes,
		Files:         files,
		Deliverables:  deliverables,
	}, nil
}

// unwrapDeliverables accepts deliverables either as a JSON array or as a
// string holding that array, which older clients send.
func unwrapDeliverables(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	return json.RawMessage(inner), nil
}

func (h HandlerSet) SubmitDelivery(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	input, err := req.toInput()
	if err != nil {
		badRequest(c, "deliverables must be a JSON array")
		return
	}

	result, err := h.deliveries.Submit(c.Request.Context(), caller(c), c.Param("gigId"), input)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"message":         fmt.Sprintf("version %d submitted for review", result.Delivery.Version),
		"version":         result.Delivery.Version,
		"retentionCap":    result.RetentionCap,
		"evictedVersions": result.EvictedVersions,
		"delivery":        toDeliveryView(result.Delivery),
	})
}

type signedURLRequest struct {
	FileURL string `json:"fileUrl"`
	Action  string `json:"action"`
}

func (h HandlerSet) SignedFileURL(c *gin.Context) {
	var req signedURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ticket, err := h.deliveries.SignViewURL(c.Request.Context(), caller(c), req.FileURL, req.Action)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"signedUrl": ticket.URL,
		"expiresAt": ticket.ExpiresAt,
	})
}
