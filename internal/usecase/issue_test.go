package usecase

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/civicworks/civicd/internal/domain"
)

// --- mocks ---

type mockIssueRepo struct {
	issues        map[string]domain.Issue
	nextCommentID int64
}

func newMockIssueRepo() *mockIssueRepo {
	return &mockIssueRepo{issues: map[string]domain.Issue{}}
}

func (m *mockIssueRepo) Create(ctx context.Context, issue domain.Issue) (domain.Issue, error) {
	m.issues[issue.PublicID] = issue
	return issue, nil
}

func (m *mockIssueRepo) Get(ctx context.Context, publicID string) (domain.Issue, error) {
	issue, ok := m.issues[publicID]
	if !ok {
		return domain.Issue{}, domain.NotFoundError{Resource: "issue"}
	}
	return issue, nil
}

func (m *mockIssueRepo) List(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error) {
	var out []domain.Issue
	for _, issue := range m.issues {
		if filter.ReporterID != nil && issue.ReporterID != *filter.ReporterID {
			continue
		}
		if filter.AssignedToID != nil && (issue.AssignedToID == nil || *issue.AssignedToID != *filter.AssignedToID) {
			continue
		}
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockIssueRepo) AdvanceStatus(ctx context.Context, publicID string, target domain.IssueStatus) (domain.Issue, error) {
	issue, ok := m.issues[publicID]
	if !ok {
		return domain.Issue{}, domain.NotFoundError{Resource: "issue"}
	}
	if !issue.Status.CanAdvanceTo(target) {
		return domain.Issue{}, domain.ErrInvalidTransition
	}
	issue.Status = target
	m.issues[publicID] = issue
	return issue, nil
}

func (m *mockIssueRepo) Assign(ctx context.Context, publicID string, worker domain.Principal) (domain.Issue, error) {
	issue, ok := m.issues[publicID]
	if !ok {
		return domain.Issue{}, domain.NotFoundError{Resource: "issue"}
	}
	name := worker.DisplayName()
	issue.AssignedToID = &worker.ID
	issue.AssignedToEmail = &worker.Email
	issue.AssignedToName = &name
	m.issues[publicID] = issue
	return issue, nil
}

func (m *mockIssueRepo) Resolve(ctx context.Context, publicID string, rating int, at time.Time) (domain.Issue, error) {
	issue, ok := m.issues[publicID]
	if !ok {
		return domain.Issue{}, domain.NotFoundError{Resource: "issue"}
	}
	if issue.Status != domain.StatusForReview {
		return domain.Issue{}, domain.ErrInvalidTransition
	}
	issue.Status = domain.StatusResolved
	issue.Rating = &rating
	issue.ResolvedAt = &at
	m.issues[publicID] = issue
	return issue, nil
}

func (m *mockIssueRepo) AddComment(ctx context.Context, publicID string, comment domain.Comment) (domain.Issue, error) {
	issue, ok := m.issues[publicID]
	if !ok {
		return domain.Issue{}, domain.NotFoundError{Resource: "issue"}
	}
	m.nextCommentID++
	comment.ID = m.nextCommentID
	issue.Comments = append(issue.Comments, comment)
	m.issues[publicID] = issue
	return issue, nil
}

type mockDirectory struct {
	candidates []domain.WorkerCandidate
}

func (m *mockDirectory) ListWorkersWithLocation(ctx context.Context) ([]domain.WorkerCandidate, error) {
	return m.candidates, nil
}

type mockIdentities struct {
	byIdentifier map[string]domain.Principal
}

func (m *mockIdentities) GetPrincipalByID(ctx context.Context, id int64) (domain.Principal, error) {
	for _, p := range m.byIdentifier {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Principal{}, domain.NotFoundError{Resource: "principal"}
}

func (m *mockIdentities) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	p, ok := m.byIdentifier[email]
	if !ok {
		return domain.Account{}, domain.NotFoundError{Resource: "account"}
	}
	return domain.Account{Principal: p}, nil
}

func (m *mockIdentities) FindByEmailOrPhone(ctx context.Context, identifier string) (domain.Principal, error) {
	p, ok := m.byIdentifier[identifier]
	if !ok {
		return domain.Principal{}, domain.NotFoundError{Resource: "worker"}
	}
	return p, nil
}

func (m *mockIdentities) CreateAccount(ctx context.Context, account domain.Account) (domain.Principal, error) {
	account.Principal.ID = int64(len(m.byIdentifier) + 1)
	m.byIdentifier[account.Email] = account.Principal
	return account.Principal, nil
}

func (m *mockIdentities) SetLocation(ctx context.Context, id int64, loc domain.Location) (domain.Principal, error) {
	for email, p := range m.byIdentifier {
		if p.ID == id {
			p.Location = &loc
			m.byIdentifier[email] = p
			return p, nil
		}
	}
	return domain.Principal{}, domain.NotFoundError{Resource: "principal"}
}

func (m *mockIdentities) ListWorkers(ctx context.Context) ([]domain.Principal, error) {
	var out []domain.Principal
	for _, p := range m.byIdentifier {
		if p.Role == domain.RoleWorker {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockSignal struct {
	events []domain.Event
}

func (m *mockSignal) Publish(ctx context.Context, event domain.Event) error {
	m.events = append(m.events, event)
	return nil
}

// --- fixtures ---

var (
	citizen = domain.Principal{ID: 1, Email: "c@example.com", FirstName: "Cora", LastName: "Citizen", Role: domain.RoleCitizen}
	worker  = domain.Principal{ID: 2, Email: "w@example.com", FirstName: "Wes", LastName: "Worker", Role: domain.RoleWorker}
	admin   = domain.Principal{ID: 3, Email: "a@example.com", FirstName: "Ada", LastName: "Admin", Role: domain.RoleAdmin}
	other   = domain.Principal{ID: 4, Email: "o@example.com", FirstName: "Omar", LastName: "Other", Role: domain.RoleCitizen}
)

func newIssueUC(repo *mockIssueRepo, dir *mockDirectory, ids *mockIdentities, sig *mockSignal) *IssueUsecase {
	if dir == nil {
		dir = &mockDirectory{}
	}
	if ids == nil {
		ids = &mockIdentities{byIdentifier: map[string]domain.Principal{}}
	}
	if sig == nil {
		sig = &mockSignal{}
	}
	return NewIssueUsecase(repo, ids, NewLocator(dir), nil, nil, sig)
}

func seedIssue(repo *mockIssueRepo, status domain.IssueStatus, assignee *domain.Principal) domain.Issue {
	issue := domain.Issue{
		PublicID:      "ab12cd34",
		Title:         "Broken street light",
		Description:   "Dark corner at night",
		Category:      "Electricity",
		Location:      domain.Location{Lat: 12.97, Lng: 77.59},
		Status:        status,
		CreatedAt:     time.Now().UTC(),
		ReporterID:    citizen.ID,
		ReporterEmail: citizen.Email,
		ReporterName:  citizen.DisplayName(),
	}
	if assignee != nil {
		name := assignee.DisplayName()
		issue.AssignedToID = &assignee.ID
		issue.AssignedToEmail = &assignee.Email
		issue.AssignedToName = &name
	}
	repo.issues[issue.PublicID] = issue
	return issue
}

// --- create ---

func TestCreateIssueNoWorkersStaysUnassigned(t *testing.T) {
	repo := newMockIssueRepo()
	sig := &mockSignal{}
	uc := newIssueUC(repo, &mockDirectory{}, nil, sig)

	created, err := uc.Create(context.Background(), citizen, CreateIssueInput{
		Title:       "Pothole",
		Description: "Deep pothole near the bus stop",
		Category:    "Road",
		Location:    domain.Location{Lat: 12.97, Lng: 77.59},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("expected Pending got %s", created.Status)
	}
	if created.AssignedToID != nil {
		t.Fatalf("expected no assignment, got %v", *created.AssignedToID)
	}
	if len(created.PublicID) != 8 {
		t.Fatalf("expected 8-char public id, got %q", created.PublicID)
	}
	if len(sig.events) != 1 || sig.events[0].Type != domain.EventIssueCreated {
		t.Fatalf("expected a created event, got %v", sig.events)
	}
}

func TestCreateIssueAutoAssignsNearestWorker(t *testing.T) {
	repo := newMockIssueRepo()
	dir := &mockDirectory{candidates: []domain.WorkerCandidate{
		{ID: 9, Email: "far@example.com", Name: "Far Worker", Location: domain.Location{Lat: 28.61, Lng: 77.21}},
		{ID: 5, Email: "near@example.com", Name: "Near Worker", Location: domain.Location{Lat: 12.98, Lng: 77.60}},
	}}
	uc := newIssueUC(repo, dir, nil, nil)

	created, err := uc.Create(context.Background(), citizen, CreateIssueInput{
		Title:       "Pothole",
		Description: "Deep pothole near the bus stop",
		Location:    domain.Location{Lat: 12.97, Lng: 77.59},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.AssignedToID == nil || *created.AssignedToID != 5 {
		t.Fatalf("expected worker 5 assigned, got %v", created.AssignedToID)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("assignment must not advance status, got %s", created.Status)
	}
}

func TestCreateIssueRejectsInvalidLocation(t *testing.T) {
	repo := newMockIssueRepo()
	uc := newIssueUC(repo, nil, nil, nil)

	_, err := uc.Create(context.Background(), citizen, CreateIssueInput{
		Title:       "Pothole",
		Description: "text",
		Location:    domain.Location{Lat: 95, Lng: 10},
	})
	if err != domain.ErrInvalidLocation {
		t.Fatalf("expected ErrInvalidLocation got %v", err)
	}
	if len(repo.issues) != 0 {
		t.Fatalf("nothing should have been stored")
	}
}

func TestCreateIssueRequiresTitleAndDescription(t *testing.T) {
	uc := newIssueUC(newMockIssueRepo(), nil, nil, nil)

	_, err := uc.Create(context.Background(), citizen, CreateIssueInput{
		Title:    " ",
		Location: domain.Location{Lat: 1, Lng: 1},
	})
	if err != domain.ErrMissingFields {
		t.Fatalf("expected ErrMissingFields got %v", err)
	}
}

type fixedCategorizer struct {
	category string
	err      error
}

func (f *fixedCategorizer) Categorize(ctx context.Context, text string) (string, error) {
	return f.category, f.err
}

func TestCreateIssueCategorizerFallsBackToOther(t *testing.T) {
	repo := newMockIssueRepo()
	uc := newIssueUC(repo, nil, nil, nil)
	uc.categorize = &fixedCategorizer{err: context.DeadlineExceeded}

	created, err := uc.Create(context.Background(), citizen, CreateIssueInput{
		Title:       "Strange smell",
		Description: "Something chemical near the canal",
		Location:    domain.Location{Lat: 12.97, Lng: 77.59},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Category != domain.CategoryOther {
		t.Fatalf("expected fallback category, got %q", created.Category)
	}

	uc.categorize = &fixedCategorizer{category: "Sanitation"}
	created, err = uc.Create(context.Background(), citizen, CreateIssueInput{
		Title:       "Overflowing bin",
		Description: "Garbage not collected for a week",
		Location:    domain.Location{Lat: 12.97, Lng: 77.59},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Category != "Sanitation" {
		t.Fatalf("expected categorizer result, got %q", created.Category)
	}
}

// --- status updates ---

func TestUpdateStatusByAssignedWorker(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusPending, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	updated, err := uc.UpdateStatus(context.Background(), worker, issue.PublicID, "InProgress")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != domain.StatusInProgress {
		t.Fatalf("expected InProgress got %s", updated.Status)
	}
}

func TestUpdateStatusByUnassignedWorkerIsRelationForbidden(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusPending, nil)
	uc := newIssueUC(repo, nil, nil, nil)

	_, err := uc.UpdateStatus(context.Background(), worker, issue.PublicID, "InProgress")
	if err != domain.ErrRelationForbidden {
		t.Fatalf("expected ErrRelationForbidden got %v", err)
	}
}

func TestUpdateStatusFailsClosedOnUnknownValue(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusPending, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	for _, target := range []string{"Done", "In Progress", ""} {
		if _, err := uc.UpdateStatus(context.Background(), admin, issue.PublicID, target); err != domain.ErrInvalidTransition {
			t.Fatalf("target %q: expected ErrInvalidTransition got %v", target, err)
		}
	}
	if repo.issues[issue.PublicID].Status != domain.StatusPending {
		t.Fatalf("status must be unchanged")
	}
}

func TestUpdateStatusNeverMovesBackwardOrResolves(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusForReview, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	if _, err := uc.UpdateStatus(context.Background(), admin, issue.PublicID, "InProgress"); err != domain.ErrInvalidTransition {
		t.Fatalf("backward move: expected ErrInvalidTransition got %v", err)
	}
	if _, err := uc.UpdateStatus(context.Background(), admin, issue.PublicID, "Resolved"); err != domain.ErrInvalidTransition {
		t.Fatalf("resolve via status update: expected ErrInvalidTransition got %v", err)
	}
}

// --- resolve ---

func TestResolveByAssignedWorkerIsRelationForbidden(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusForReview, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	_, err := uc.Resolve(context.Background(), worker, issue.PublicID, 5)
	if err != domain.ErrRelationForbidden {
		t.Fatalf("expected ErrRelationForbidden got %v", err)
	}
}

func TestResolveOutsideForReviewIsConflict(t *testing.T) {
	for _, status := range []domain.IssueStatus{domain.StatusPending, domain.StatusInProgress, domain.StatusResolved} {
		repo := newMockIssueRepo()
		issue := seedIssue(repo, status, &worker)
		uc := newIssueUC(repo, nil, nil, nil)

		_, err := uc.Resolve(context.Background(), citizen, issue.PublicID, 4)
		if err != domain.ErrInvalidTransition {
			t.Fatalf("status %s: expected ErrInvalidTransition got %v", status, err)
		}
		stored := repo.issues[issue.PublicID]
		if stored.Status != status || stored.Rating != nil {
			t.Fatalf("status %s: issue must be unchanged, got %+v", status, stored)
		}
	}
}

func TestResolveRatingValidatedBeforeState(t *testing.T) {
	for _, status := range []domain.IssueStatus{domain.StatusPending, domain.StatusInProgress, domain.StatusForReview} {
		repo := newMockIssueRepo()
		issue := seedIssue(repo, status, &worker)
		uc := newIssueUC(repo, nil, nil, nil)

		for _, rating := range []int{0, 6, -1} {
			_, err := uc.Resolve(context.Background(), citizen, issue.PublicID, rating)
			if err != domain.ErrInvalidRating {
				t.Fatalf("status %s rating %d: expected ErrInvalidRating got %v", status, rating, err)
			}
		}
		stored := repo.issues[issue.PublicID]
		if stored.Status != status || stored.Rating != nil {
			t.Fatalf("status %s: issue must be unchanged", status)
		}
	}
}

func TestResolveHappyPath(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusForReview, &worker)
	sig := &mockSignal{}
	uc := newIssueUC(repo, nil, nil, sig)

	resolved, err := uc.Resolve(context.Background(), citizen, issue.PublicID, 4)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != domain.StatusResolved {
		t.Fatalf("expected Resolved got %s", resolved.Status)
	}
	if resolved.Rating == nil || *resolved.Rating != 4 {
		t.Fatalf("expected rating 4 got %v", resolved.Rating)
	}
	if resolved.ResolvedAt == nil {
		t.Fatalf("expected resolution timestamp")
	}
	if len(sig.events) != 1 || sig.events[0].Type != domain.EventIssueResolved {
		t.Fatalf("expected a resolved event, got %v", sig.events)
	}
}

// --- reassignment ---

func TestReassignRequiresWorkerRole(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusPending, &worker)
	ids := &mockIdentities{byIdentifier: map[string]domain.Principal{
		other.Email: other,
	}}
	uc := newIssueUC(repo, nil, ids, nil)

	_, err := uc.Reassign(context.Background(), admin, issue.PublicID, other.Email)
	if err != domain.ErrWorkerRoleRequired {
		t.Fatalf("expected ErrWorkerRoleRequired got %v", err)
	}
	if *repo.issues[issue.PublicID].AssignedToID != worker.ID {
		t.Fatalf("assignment must be unchanged")
	}
}

func TestReassignIsAdminOnly(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusPending, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	_, err := uc.Reassign(context.Background(), worker, issue.PublicID, worker.Email)
	if err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden got %v", err)
	}
}

func TestReassignIsIdempotent(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusInProgress, nil)
	ids := &mockIdentities{byIdentifier: map[string]domain.Principal{
		worker.Email: worker,
	}}
	uc := newIssueUC(repo, nil, ids, nil)

	first, err := uc.Reassign(context.Background(), admin, issue.PublicID, worker.Email)
	if err != nil {
		t.Fatalf("first reassign failed: %v", err)
	}
	second, err := uc.Reassign(context.Background(), admin, issue.PublicID, worker.Email)
	if err != nil {
		t.Fatalf("second reassign failed: %v", err)
	}
	if *first.AssignedToID != *second.AssignedToID || *first.AssignedToEmail != *second.AssignedToEmail {
		t.Fatalf("reassigning twice must yield the same representation")
	}
	if second.Status != domain.StatusInProgress {
		t.Fatalf("reassignment must not touch status")
	}
}

// --- comments ---

func TestCommentRelations(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusInProgress, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	for _, actor := range []domain.Principal{citizen, worker, admin} {
		if _, err := uc.Comment(context.Background(), actor, issue.PublicID, "update"); err != nil {
			t.Fatalf("%s comment failed: %v", actor.Role, err)
		}
	}

	_, err := uc.Comment(context.Background(), other, issue.PublicID, "me too")
	if err != domain.ErrRelationForbidden {
		t.Fatalf("expected ErrRelationForbidden got %v", err)
	}

	stored := repo.issues[issue.PublicID]
	if len(stored.Comments) != 3 {
		t.Fatalf("expected 3 comments got %d", len(stored.Comments))
	}
	for i := 1; i < len(stored.Comments); i++ {
		if stored.Comments[i].ID <= stored.Comments[i-1].ID {
			t.Fatalf("comments must keep insertion order")
		}
	}
}

func TestCommentRejectsEmptyText(t *testing.T) {
	repo := newMockIssueRepo()
	issue := seedIssue(repo, domain.StatusInProgress, &worker)
	uc := newIssueUC(repo, nil, nil, nil)

	_, err := uc.Comment(context.Background(), citizen, issue.PublicID, "   ")
	if err != domain.ErrEmptyComment {
		t.Fatalf("expected ErrEmptyComment got %v", err)
	}
}

// --- listing ---

func TestListIsRoleScoped(t *testing.T) {
	repo := newMockIssueRepo()
	mine := seedIssue(repo, domain.StatusPending, &worker)
	foreign := domain.Issue{
		PublicID:   "ff00ff00",
		Title:      "Other report",
		Status:     domain.StatusPending,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
		ReporterID: other.ID,
	}
	repo.issues[foreign.PublicID] = foreign
	uc := newIssueUC(repo, nil, nil, nil)

	all, err := uc.List(context.Background(), admin)
	if err != nil || len(all) != 2 {
		t.Fatalf("admin should see everything, got %d (%v)", len(all), err)
	}
	reported, err := uc.List(context.Background(), citizen)
	if err != nil || len(reported) != 1 || reported[0].PublicID != mine.PublicID {
		t.Fatalf("citizen should see only own reports, got %v (%v)", reported, err)
	}
	assigned, err := uc.List(context.Background(), worker)
	if err != nil || len(assigned) != 1 || assigned[0].PublicID != mine.PublicID {
		t.Fatalf("worker should see only assignments, got %v (%v)", assigned, err)
	}
}
