package usecase

import (
	"context"
	"time"

	"github.com/civicworks/civicd/internal/domain"
)

// IssueRepository defines storage operations for issues and their
// comments. Every mutating operation must re-check its state
// precondition inside a transaction holding a row lock, so two racing
// transitions can never both succeed from the same prior state.
type IssueRepository interface {
	Create(ctx context.Context, issue domain.Issue) (domain.Issue, error)
	Get(ctx context.Context, publicID string) (domain.Issue, error)
	List(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error)
	AdvanceStatus(ctx context.Context, publicID string, target domain.IssueStatus) (domain.Issue, error)
	Assign(ctx context.Context, publicID string, worker domain.Principal) (domain.Issue, error)
	Resolve(ctx context.Context, publicID string, rating int, at time.Time) (domain.Issue, error)
	AddComment(ctx context.Context, publicID string, comment domain.Comment) (domain.Issue, error)
}

// IdentityRepository is the identity-store collaborator.
type IdentityRepository interface {
	GetPrincipalByID(ctx context.Context, id int64) (domain.Principal, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	FindByEmailOrPhone(ctx context.Context, identifier string) (domain.Principal, error)
	CreateAccount(ctx context.Context, account domain.Account) (domain.Principal, error)
	SetLocation(ctx context.Context, id int64, loc domain.Location) (domain.Principal, error)
	ListWorkers(ctx context.Context) ([]domain.Principal, error)
}

// WorkerDirectory produces worker candidates for proximity search.
type WorkerDirectory interface {
	ListWorkersWithLocation(ctx context.Context) ([]domain.WorkerCandidate, error)
}

// Categorizer classifies free-form report text into a category.
type Categorizer interface {
	Categorize(ctx context.Context, text string) (string, error)
}

// Mailer delivers reporter notifications. Implementations send in the
// background; a delivery failure never fails the triggering request.
type Mailer interface {
	SendIssueCreated(ctx context.Context, issue domain.Issue) error
	SendStatusChanged(ctx context.Context, issue domain.Issue) error
}

// Signaler publishes lifecycle events for realtime subscribers.
type Signaler interface {
	Publish(ctx context.Context, event domain.Event) error
}

// CredentialIssuer produces a signed credential for a subject.
type CredentialIssuer interface {
	Issue(subjectID int64, now time.Time) (string, error)
}
