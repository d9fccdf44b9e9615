package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/civicworks/civicd/internal/domain"
)

type staticIssuer struct{}

func (staticIssuer) Issue(subjectID int64, now time.Time) (string, error) {
	return "token", nil
}

func TestRegisterCreatesCitizen(t *testing.T) {
	ids := &mockIdentities{byIdentifier: map[string]domain.Principal{}}
	uc := NewAccountUsecase(ids, staticIssuer{})

	principal, token, err := uc.Register(context.Background(), RegisterInput{
		Email:        "New.User@Example.com",
		Password:     "hunter22",
		FirstName:    "New",
		LastName:     "User",
		MobileNumber: "5550101",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if principal.Role != domain.RoleCitizen {
		t.Fatalf("expected Citizen role got %s", principal.Role)
	}
	if principal.Email != "new.user@example.com" {
		t.Fatalf("email must be lowercased, got %q", principal.Email)
	}
	if token == "" {
		t.Fatalf("expected a credential")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	ids := &mockIdentities{byIdentifier: map[string]domain.Principal{
		"taken@example.com": {ID: 1, Email: "taken@example.com", Role: domain.RoleCitizen},
	}}
	uc := NewAccountUsecase(ids, staticIssuer{})

	_, _, err := uc.Register(context.Background(), RegisterInput{
		Email:        "taken@example.com",
		Password:     "hunter22",
		FirstName:    "A",
		LastName:     "B",
		MobileNumber: "5550101",
	})
	if err != domain.ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken got %v", err)
	}
}

func TestRegisterRequiresAllFields(t *testing.T) {
	uc := NewAccountUsecase(&mockIdentities{byIdentifier: map[string]domain.Principal{}}, staticIssuer{})

	_, _, err := uc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "x"})
	if err != domain.ErrMissingFields {
		t.Fatalf("expected ErrMissingFields got %v", err)
	}
}

type passwordIdentities struct {
	mockIdentities
	hash string
}

func (p *passwordIdentities) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	account, err := p.mockIdentities.GetAccountByEmail(ctx, email)
	if err != nil {
		return domain.Account{}, err
	}
	account.PasswordHash = p.hash
	return account, nil
}

func TestLoginRejectsWrongPasswordAndUnknownEmailAlike(t *testing.T) {
	// Any well-formed bcrypt hash that does not match "wrong".
	ids := &passwordIdentities{
		mockIdentities: mockIdentities{byIdentifier: map[string]domain.Principal{
			"c@example.com": citizen,
		}},
		hash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
	}
	uc := NewAccountUsecase(ids, staticIssuer{})

	_, _, err := uc.Login(context.Background(), "c@example.com", "wrong")
	if err != domain.ErrInvalidLogin {
		t.Fatalf("wrong password: expected ErrInvalidLogin got %v", err)
	}
	_, _, err = uc.Login(context.Background(), "missing@example.com", "wrong")
	if err != domain.ErrInvalidLogin {
		t.Fatalf("unknown email: expected ErrInvalidLogin got %v", err)
	}
}

func TestUpdateLocationIsWorkerOnly(t *testing.T) {
	ids := &mockIdentities{byIdentifier: map[string]domain.Principal{
		citizen.Email: citizen,
		worker.Email:  worker,
	}}
	uc := NewAccountUsecase(ids, staticIssuer{})

	_, err := uc.UpdateLocation(context.Background(), citizen, domain.Location{Lat: 1, Lng: 1})
	if err != domain.ErrForbidden {
		t.Fatalf("citizen: expected ErrForbidden got %v", err)
	}
	_, err = uc.UpdateLocation(context.Background(), admin, domain.Location{Lat: 1, Lng: 1})
	if err != domain.ErrForbidden {
		t.Fatalf("admin: expected ErrForbidden got %v", err)
	}

	updated, err := uc.UpdateLocation(context.Background(), worker, domain.Location{Lat: 12.97, Lng: 77.59})
	if err != nil {
		t.Fatalf("worker update failed: %v", err)
	}
	if updated.Location == nil || updated.Location.Lat != 12.97 {
		t.Fatalf("location not stored: %+v", updated.Location)
	}

	_, err = uc.UpdateLocation(context.Background(), worker, domain.Location{Lat: 12.97, Lng: 200})
	if err != domain.ErrInvalidLocation {
		t.Fatalf("expected ErrInvalidLocation got %v", err)
	}
}
