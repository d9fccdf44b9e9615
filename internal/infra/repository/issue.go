package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicworks/civicd/internal/domain"
	"github.com/civicworks/civicd/internal/infra/database/models"
)

// IssueRepository persists issues in postgres. Every state-changing
// operation runs in a transaction that takes a row lock and re-checks
// its precondition against the locked row, so concurrent transitions
// serialize instead of double-applying.
type IssueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

func (r *IssueRepository) Create(ctx context.Context, issue domain.Issue) (domain.Issue, error) {
	model, err := issueToModel(issue)
	if err != nil {
		return domain.Issue{}, wrapStorage(err)
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Issue{}, wrapStorage(err)
	}

	return r.Get(ctx, issue.PublicID)
}

func (r *IssueRepository) Get(ctx context.Context, publicID string) (domain.Issue, error) {
	var model models.Issue
	err := r.db.WithContext(ctx).
		Preload("Reporter").
		Preload("AssignedTo").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.c_date ASC, comments.id ASC")
		}).
		Preload("Comments.Author").
		Where("public_id = ?", publicID).
		Take(&model).Error
	if err != nil {
		return domain.Issue{}, wrapStorage(err)
	}
	return issueFromModel(model)
}

func (r *IssueRepository) List(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error) {
	query := r.db.WithContext(ctx).
		Preload("Reporter").
		Preload("AssignedTo").
		Order("c_date DESC, id DESC")

	if filter.ReporterID != nil {
		query = query.Where("reporter_id = ?", *filter.ReporterID)
	}
	if filter.AssignedToID != nil {
		query = query.Where("assigned_to_id = ?", *filter.AssignedToID)
	}

	var rows []models.Issue
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStorage(err)
	}

	issues := make([]domain.Issue, 0, len(rows))
	for _, row := range rows {
		issue, err := issueFromModel(row)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// AdvanceStatus moves the issue to target. The transition is validated
// again against the locked row; a concurrent writer that got there
// first makes this a conflict, not a lost update.
func (r *IssueRepository) AdvanceStatus(ctx context.Context, publicID string, target domain.IssueStatus) (domain.Issue, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.Issue
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", publicID).
			Take(&model).Error; err != nil {
			return err
		}

		current, ok := domain.ParseIssueStatus(model.Status)
		if !ok || !current.CanAdvanceTo(target) {
			return domain.ErrInvalidTransition
		}

		return tx.Model(&model).Update("status", string(target)).Error
	})
	if err != nil {
		return domain.Issue{}, wrapStorage(err)
	}
	return r.Get(ctx, publicID)
}

func (r *IssueRepository) Assign(ctx context.Context, publicID string, worker domain.Principal) (domain.Issue, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.Issue
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", publicID).
			Take(&model).Error; err != nil {
			return err
		}

		return tx.Model(&model).Update("assigned_to_id", worker.ID).Error
	})
	if err != nil {
		return domain.Issue{}, wrapStorage(err)
	}
	return r.Get(ctx, publicID)
}

// Resolve finalizes the issue. The ForReview precondition is re-checked
// under the row lock so two racing resolutions cannot both record a
// rating.
func (r *IssueRepository) Resolve(ctx context.Context, publicID string, rating int, at time.Time) (domain.Issue, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.Issue
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", publicID).
			Take(&model).Error; err != nil {
			return err
		}

		if model.Status != string(domain.StatusForReview) {
			return domain.ErrInvalidTransition
		}

		return tx.Model(&model).Updates(map[string]any{
			"status":      string(domain.StatusResolved),
			"rating":      rating,
			"resolved_at": at,
		}).Error
	})
	if err != nil {
		return domain.Issue{}, wrapStorage(err)
	}
	return r.Get(ctx, publicID)
}

func (r *IssueRepository) AddComment(ctx context.Context, publicID string, comment domain.Comment) (domain.Issue, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.Issue
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", publicID).
			Take(&model).Error; err != nil {
			return err
		}

		return tx.Create(&models.Comment{
			IssueID:  model.ID,
			AuthorID: comment.AuthorID,
			Text:     comment.Text,
		}).Error
	})
	if err != nil {
		return domain.Issue{}, wrapStorage(err)
	}
	return r.Get(ctx, publicID)
}

func issueToModel(issue domain.Issue) (models.Issue, error) {
	photos, err := json.Marshal(issue.PhotoURLs)
	if err != nil {
		return models.Issue{}, err
	}
	return models.Issue{
		PublicID:     issue.PublicID,
		Title:        issue.Title,
		Description:  issue.Description,
		Category:     issue.Category,
		PhotoURLs:    string(photos),
		Lat:          issue.Location.Lat,
		Lng:          issue.Location.Lng,
		Status:       string(issue.Status),
		Rating:       issue.Rating,
		ReporterID:   issue.ReporterID,
		AssignedToID: issue.AssignedToID,
		ResolvedAt:   issue.ResolvedAt,
	}, nil
}

func issueFromModel(model models.Issue) (domain.Issue, error) {
	var photos []string
	if model.PhotoURLs != "" {
		if err := json.Unmarshal([]byte(model.PhotoURLs), &photos); err != nil {
			return domain.Issue{}, wrapStorage(err)
		}
	}

	status, ok := domain.ParseIssueStatus(model.Status)
	if !ok {
		return domain.Issue{}, domain.StorageError{Err: gorm.ErrInvalidData}
	}

	issue := domain.Issue{
		PublicID:      model.PublicID,
		Title:         model.Title,
		Description:   model.Description,
		Category:      model.Category,
		PhotoURLs:     photos,
		Location:      domain.Location{Lat: model.Lat, Lng: model.Lng},
		Status:        status,
		Rating:        model.Rating,
		CreatedAt:     model.CDate,
		ResolvedAt:    model.ResolvedAt,
		ReporterID:    model.ReporterID,
		ReporterEmail: model.Reporter.Email,
		ReporterName:  displayName(model.Reporter),
		AssignedToID:  model.AssignedToID,
	}

	if model.AssignedTo != nil {
		email := model.AssignedTo.Email
		name := displayName(*model.AssignedTo)
		issue.AssignedToEmail = &email
		issue.AssignedToName = &name
	}

	for _, row := range model.Comments {
		issue.Comments = append(issue.Comments, domain.Comment{
			ID:          row.ID,
			AuthorID:    row.AuthorID,
			AuthorEmail: row.Author.Email,
			AuthorName:  displayName(row.Author),
			Text:        row.Text,
			CreatedAt:   row.CDate,
		})
	}

	return issue, nil
}
