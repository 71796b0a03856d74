package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"

	"github.com/gin-gonic/gin"
)

type IssueStore interface {
	List(ctx context.Context, f repository.IssueFilter) ([]models.Issue, int64, error)
	Resolve(ctx context.Context, id string, at time.Time) (*models.Issue, error)
}

type IssueHandler struct {
	issues IssueStore
	logger *logger.Logger
}

func NewIssueHandler(issues IssueStore, logger *logger.Logger) *IssueHandler {
	return &IssueHandler{
		issues: issues,
		logger: logger,
	}
}

func (h *IssueHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := repository.IssueFilter{
		Component: c.Query("component"),
		Severity:  c.Query("severity"),
		Page:      page,
		Limit:     limit,
	}
	switch c.Query("resolved") {
	case "true":
		resolved := true
		filter.Resolved = &resolved
	case "false":
		resolved := false
		filter.Resolved = &resolved
	}

	issues, total, err := h.issues.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list issues: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": issues,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *IssueHandler) Resolve(c *gin.Context) {
	issue, err := h.issues.Resolve(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
			return
		}
		h.logger.Error("Failed to resolve issue %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve issue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": issue})
}
