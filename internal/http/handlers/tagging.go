package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pinpung/pinpung-ai/internal/http/response"
	"github.com/pinpung/pinpung-ai/internal/services"
)

type TaggingHandler struct {
	tagging services.TaggingService
}

func NewTaggingHandler(tagging services.TaggingService) *TaggingHandler {
	return &TaggingHandler{tagging: tagging}
}

type generateTagsRequest struct {
	PlaceID    int64  `json:"place_id"`
	UserID     int64  `json:"user_id"`
	ReviewText string `json:"review_text"`
	ImageKey   string `json:"image_key"`
}

// POST /api/gen-tags
func (h *TaggingHandler) GenerateTags(c *gin.Context) {
	var req generateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	generated, err := h.tagging.GenerateTags(c.Request.Context(), services.GenerateTagsInput{
		PlaceID:    req.PlaceID,
		UserID:     req.UserID,
		ReviewText: req.ReviewText,
		ImageKey:   req.ImageKey,
	})
	if err != nil {
		status := statusForError(err)
		response.RespondError(c, status, codeForStatus(status), err)
		return
	}
	response.RespondOK(c, gin.H{"generated": generated})
}
