package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicworks/civicd/internal/domain"
)

// CreateIssueInput is the validated input for filing a report.
type CreateIssueInput struct {
	Title       string
	Description string
	Category    string
	PhotoURLs   []string
	Location    domain.Location
}

// IssueUsecase owns the issue lifecycle: the status state machine,
// per-transition relational authorization, and the side effects tied
// to each transition. Every operation receives the resolved principal
// and performs its own relational check on top of whatever role gate
// already ran.
type IssueUsecase struct {
	issues     IssueRepository
	identities IdentityRepository
	locator    *Locator
	categorize Categorizer
	mailer     Mailer
	signal     Signaler
}

func NewIssueUsecase(
	issues IssueRepository,
	identities IdentityRepository,
	locator *Locator,
	categorize Categorizer,
	mailer Mailer,
	signal Signaler,
) *IssueUsecase {
	return &IssueUsecase{
		issues:     issues,
		identities: identities,
		locator:    locator,
		categorize: categorize,
		mailer:     mailer,
		signal:     signal,
	}
}

// Create files a new issue as the reporter. A nearest worker, if one
// exists, is attached at creation time; assignment does not advance
// the status, the issue starts Pending either way.
func (uc *IssueUsecase) Create(ctx context.Context, reporter domain.Principal, input CreateIssueInput) (domain.Issue, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Description) == "" {
		return domain.Issue{}, domain.ErrMissingFields
	}
	if !input.Location.Valid() {
		return domain.Issue{}, domain.ErrInvalidLocation
	}

	category := strings.TrimSpace(input.Category)
	if category == "" && uc.categorize != nil {
		guessed, err := uc.categorize.Categorize(ctx, input.Title+"\n"+input.Description)
		if err != nil {
			slog.WarnContext(ctx, "categorization failed",
				slog.String("error", err.Error()),
				slog.String("module", "issue"),
			)
		} else {
			category = guessed
		}
	}
	if category == "" {
		category = domain.CategoryOther
	}

	issue := domain.Issue{
		PublicID:      newPublicID(),
		Title:         strings.TrimSpace(input.Title),
		Description:   input.Description,
		Category:      category,
		PhotoURLs:     input.PhotoURLs,
		Location:      input.Location,
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
		ReporterID:    reporter.ID,
		ReporterEmail: reporter.Email,
		ReporterName:  reporter.DisplayName(),
	}

	// A missing worker is "unassigned", not a failure.
	worker, err := uc.locator.FindNearest(ctx, input.Location)
	if err != nil {
		return domain.Issue{}, err
	}
	if worker != nil {
		issue.AssignedToID = &worker.ID
		issue.AssignedToEmail = &worker.Email
		issue.AssignedToName = &worker.Name
	}

	created, err := uc.issues.Create(ctx, issue)
	if err != nil {
		return domain.Issue{}, err
	}

	uc.publish(ctx, domain.EventIssueCreated, created, reporter)
	uc.mail(ctx, created, uc.mailerCreated)

	return created, nil
}

// UpdateStatus moves an issue forward through the lifecycle. Only an
// admin or the currently assigned worker may do so, and Resolved is
// unreachable here: resolution goes through Resolve with a rating.
func (uc *IssueUsecase) UpdateStatus(ctx context.Context, actor domain.Principal, publicID string, target string) (domain.Issue, error) {
	status, ok := domain.ParseIssueStatus(target)
	if !ok {
		// Unrecognized status strings fail closed.
		return domain.Issue{}, domain.ErrInvalidTransition
	}

	issue, err := uc.issues.Get(ctx, publicID)
	if err != nil {
		return domain.Issue{}, err
	}

	if actor.Role != domain.RoleAdmin && !issue.IsAssignee(actor) {
		return domain.Issue{}, domain.ErrRelationForbidden
	}

	if !issue.Status.CanAdvanceTo(status) {
		return domain.Issue{}, domain.ErrInvalidTransition
	}

	updated, err := uc.issues.AdvanceStatus(ctx, publicID, status)
	if err != nil {
		return domain.Issue{}, err
	}

	uc.publish(ctx, domain.EventStatusChanged, updated, actor)
	uc.mail(ctx, updated, uc.mailerStatus)

	return updated, nil
}

// Reassign hands an issue to a different worker. Admin only, and the
// target must actually hold the Worker role; that is validated before
// any write. Reassigning to the current assignee is a no-op write.
func (uc *IssueUsecase) Reassign(ctx context.Context, actor domain.Principal, publicID string, workerIdentifier string) (domain.Issue, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.Issue{}, domain.ErrForbidden
	}

	worker, err := uc.identities.FindByEmailOrPhone(ctx, workerIdentifier)
	if err != nil {
		return domain.Issue{}, err
	}
	if worker.Role != domain.RoleWorker {
		return domain.Issue{}, domain.ErrWorkerRoleRequired
	}

	if _, err := uc.issues.Get(ctx, publicID); err != nil {
		return domain.Issue{}, err
	}

	updated, err := uc.issues.Assign(ctx, publicID, worker)
	if err != nil {
		return domain.Issue{}, err
	}

	uc.publish(ctx, domain.EventIssueAssigned, updated, actor)

	return updated, nil
}

// Resolve closes an issue with a satisfaction rating. Only the
// original reporter may resolve, the rating must be in [1,5], and the
// issue must currently be ForReview. All checks complete before any
// write.
func (uc *IssueUsecase) Resolve(ctx context.Context, actor domain.Principal, publicID string, rating int) (domain.Issue, error) {
	issue, err := uc.issues.Get(ctx, publicID)
	if err != nil {
		return domain.Issue{}, err
	}

	if !issue.IsReporter(actor) {
		return domain.Issue{}, domain.ErrRelationForbidden
	}
	if rating < 1 || rating > 5 {
		return domain.Issue{}, domain.ErrInvalidRating
	}
	if issue.Status != domain.StatusForReview {
		return domain.Issue{}, domain.ErrInvalidTransition
	}

	updated, err := uc.issues.Resolve(ctx, publicID, rating, time.Now().UTC())
	if err != nil {
		return domain.Issue{}, err
	}

	uc.publish(ctx, domain.EventIssueResolved, updated, actor)

	return updated, nil
}

// Comment appends a comment. Authorship is relational: the reporter,
// the assigned worker, or an admin.
func (uc *IssueUsecase) Comment(ctx context.Context, actor domain.Principal, publicID string, text string) (domain.Issue, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Issue{}, domain.ErrEmptyComment
	}

	issue, err := uc.issues.Get(ctx, publicID)
	if err != nil {
		return domain.Issue{}, err
	}

	allowed := actor.Role == domain.RoleAdmin || issue.IsReporter(actor) || issue.IsAssignee(actor)
	if !allowed {
		return domain.Issue{}, domain.ErrRelationForbidden
	}

	comment := domain.Comment{
		AuthorID:    actor.ID,
		AuthorEmail: actor.Email,
		AuthorName:  actor.DisplayName(),
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}

	updated, err := uc.issues.AddComment(ctx, publicID, comment)
	if err != nil {
		return domain.Issue{}, err
	}

	uc.publish(ctx, domain.EventIssueCommented, updated, actor)

	return updated, nil
}

func (uc *IssueUsecase) Get(ctx context.Context, publicID string) (domain.Issue, error) {
	return uc.issues.Get(ctx, publicID)
}

// List returns issues scoped to the caller: admins and service
// principals see everything, workers their assignments, citizens
// their own reports. Always newest first.
func (uc *IssueUsecase) List(ctx context.Context, actor domain.Principal) ([]domain.Issue, error) {
	filter := domain.IssueFilter{}
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleService:
	case domain.RoleWorker:
		filter.AssignedToID = &actor.ID
	default:
		filter.ReporterID = &actor.ID
	}
	return uc.issues.List(ctx, filter)
}

func (uc *IssueUsecase) publish(ctx context.Context, eventType domain.EventType, issue domain.Issue, actor domain.Principal) {
	if uc.signal == nil {
		return
	}
	event := domain.Event{
		Type:      eventType,
		IssueID:   issue.PublicID,
		Status:    issue.Status,
		Actor:     actor.Email,
		Timestamp: time.Now().UTC(),
	}
	if err := uc.signal.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "event publish failed",
			slog.String("error", err.Error()),
			slog.String("module", "issue"),
		)
	}
}

type mailFunc func(ctx context.Context, issue domain.Issue) error

func (uc *IssueUsecase) mailerCreated(ctx context.Context, issue domain.Issue) error {
	return uc.mailer.SendIssueCreated(ctx, issue)
}

func (uc *IssueUsecase) mailerStatus(ctx context.Context, issue domain.Issue) error {
	return uc.mailer.SendStatusChanged(ctx, issue)
}

func (uc *IssueUsecase) mail(ctx context.Context, issue domain.Issue, send mailFunc) {
	if uc.mailer == nil {
		return
	}
	if err := send(ctx, issue); err != nil {
		slog.WarnContext(ctx, "notification mail failed",
			slog.String("error", err.Error()),
			slog.String("module", "issue"),
		)
	}
}

// newPublicID derives the short public identifier reports are tracked
// by. Eight hex characters of a v4 uuid keeps ids url-friendly without
// exposing storage keys.
func newPublicID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
