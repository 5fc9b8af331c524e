package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fiftybrains/delivery/internal/models"
)

type reviewRequest struct {
	Status   string `json:"status"`
	Rating   *int   `json:"rating"`
	Feedback string `json:"feedback"`
}

func (h HandlerSet) Approve(c *gin.Context) {
	h.review(c, models.DeliveryStatusApproved)
}

func (h HandlerSet) Reject(c *gin.Context) {
	h.review(c, models.DeliveryStatusRejected)
}

func (h HandlerSet) RequestRevision(c *gin.Context) {
	h.review(c, models.DeliveryStatusRevision)
}

// Review takes the decision status from the body.
func (h HandlerSet) Review(c *gin.Context) {
	h.review(c, "")
}

func (h HandlerSet) review(c *gin.Context, status models.DeliveryStatus) {
	var req reviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	if status == "" {
		status = models.DeliveryStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	}

	reviewed, err := h.reviews.Review(c.Request.Context(), caller(c), c.Param("id"), models.ReviewDecision{
		Status:   status,
		Rating:   req.Rating,
		Feedback: req.Feedback,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"message":    "submission " + strings.ToLower(string(reviewed.Status)),
		"submission": toDeliveryView(reviewed),
	})
}
