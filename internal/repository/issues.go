package repository

import (
	"context"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type IssueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

type IssueFilter struct {
	Component string
	Severity  string
	Resolved  *bool
	Page      int
	Limit     int
}

// RecordAll persists the item errors of one sync call.
func (r *IssueRepository) RecordAll(ctx context.Context, component, storeID string, severity models.IssueSeverity, errs []catalog.ItemError) error {
	if len(errs) == 0 {
		return nil
	}
	issues := make([]models.Issue, 0, len(errs))
	for _, e := range errs {
		issues = append(issues, models.Issue{
			Component:   component,
			Key:         e.Key,
			StoreID:     storeID,
			Code:        e.Reason,
			Severity:    severity,
			Explanation: e.Error(),
		})
	}
	return translate(r.db.WithContext(ctx).CreateInBatches(&issues, 100).Error)
}

func (r *IssueRepository) List(ctx context.Context, f IssueFilter) ([]models.Issue, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}

	query := r.db.WithContext(ctx).Model(&models.Issue{})
	if f.Component != "" {
		query = query.Where("component = ?", f.Component)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.Resolved != nil {
		query = query.Where("is_resolved = ?", *f.Resolved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var issues []models.Issue
	err := query.Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&issues).Error
	return issues, total, translate(err)
}

func (r *IssueRepository) Resolve(ctx context.Context, id string, at time.Time) (*models.Issue, error) {
	var issue models.Issue
	if err := r.db.WithContext(ctx).First(&issue, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	issue.IsResolved = true
	issue.ResolvedAt = &at
	if err := r.db.WithContext(ctx).Save(&issue).Error; err != nil {
		return nil, translate(err)
	}
	return &issue, nil
}
