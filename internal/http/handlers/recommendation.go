package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pinpung/pinpung-ai/internal/http/response"
	"github.com/pinpung/pinpung-ai/internal/services"
)

type RecommendationHandler struct {
	recs services.RecommendationService
}

func NewRecommendationHandler(recs services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recs: recs}
}

type personalRecsRequest struct {
	UserID   int64   `json:"user_id"`
	PlaceIDs []int64 `json:"place_ids"`
}

type popularRecsRequest struct {
	PlaceIDs []int64 `json:"place_ids"`
}

// POST /api/recs/personal
func (h *RecommendationHandler) Personal(c *gin.Context) {
	var req personalRecsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	ranked, err := h.recs.Personal(c.Request.Context(), req.UserID, req.PlaceIDs)
	if err != nil {
		status := statusForError(err)
		response.RespondError(c, status, codeForStatus(status), err)
		return
	}
	response.RespondOK(c, gin.H{"place_ids": ranked})
}

// POST /api/recs/popular
func (h *RecommendationHandler) Popular(c *gin.Context) {
	var req popularRecsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	results, err := h.recs.Popular(c.Request.Context(), req.PlaceIDs)
	if err != nil {
		status := statusForError(err)
		response.RespondError(c, status, codeForStatus(status), err)
		return
	}
	if results == nil {
		results = []services.PopularResult{}
	}
	response.RespondOK(c, gin.H{"results": results})
}
