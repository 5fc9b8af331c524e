package handlers

import (
	"encoding/json"
	"time"

	"fiftybrains/delivery/internal/models"
)

type fileView struct {
	Key           string `json:"key"`
	FileURL       string `json:"fileUrl"`
	Name          string `json:"fileName"`
	Size          int64  `json:"fileSize"`
	SizeFormatted string `json:"fileSizeFormatted"`
	MIMEType      string `json:"mimeType"`
}

type deliveryView struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"applicationId"`
	GigID         string          `json:"gigId"`
	Version       int             `json:"version"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Notes         string          `json:"notes,omitempty"`
	Status        string          `json:"status"`
	Feedback      *string         `json:"feedback,omitempty"`
	Rating        *int            `json:"rating,omitempty"`
	FileDetails   []fileView      `json:"fileDetails"`
	Deliverables  json.RawMessage `json:"deliverables"`
	SubmittedAt   time.Time       `json:"submittedAt"`
	ReviewedAt    *time.Time      `json:"reviewedAt,omitempty"`
}

func toDeliveryView(d models.Delivery) deliveryView {
	files := make([]fileView, 0, len(d.Files))
	for _, f := range d.Files {
		files = append(files, fileView{
			Key:           f.Key,
			FileURL:       f.Key,
			Name:          f.Name,
			Size:          f.SizeBytes,
			SizeFormatted: f.HumanSize(),
			MIMEType:      f.MIMEType,
		})
	}

	deliverables, err := models.MarshalDeliverables(d.Deliverables)
	if err != nil {
		deliverables = json.RawMessage("[]")
	}

	return deliveryView{
		ID:            d.ID,
		ApplicationID: d.ApplicationID,
		GigID:         d.GigID,
		Version:       d.Version,
		Title:         d.Title,
		Description:   d.Description,
		Notes:         d.Notes,
		Status:        string(d.Status),
		Feedback:      d.Feedback,
		Rating:        d.Rating,
		FileDetails:   files,
		Deliverables:  deliverables,
		SubmittedAt:   d.SubmittedAt,
		ReviewedAt:    d.ReviewedAt,
	}
}

func toDeliveryViews(items []models.Delivery) []deliveryView {
	out := make([]deliveryView, 0, len(items))
	for _, d := range items {
		out = append(out, toDeliveryView(d))
	}
	return out
}
