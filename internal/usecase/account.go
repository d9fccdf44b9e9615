package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicworks/civicd/internal/domain"
)

// RegisterInput holds the fields required to create an account.
type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	MobileNumber string
}

// AccountUsecase covers registration, login and profile maintenance.
// It sits upstream of the lifecycle core: its only coupling to the
// credential verifier is the issuer port.
type AccountUsecase struct {
	identities IdentityRepository
	issuer     CredentialIssuer
}

func NewAccountUsecase(identities IdentityRepository, issuer CredentialIssuer) *AccountUsecase {
	return &AccountUsecase{
		identities: identities,
		issuer:     issuer,
	}
}

// Register creates a Citizen account and returns it with a fresh
// credential.
func (uc *AccountUsecase) Register(ctx context.Context, input RegisterInput) (domain.Principal, string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" || input.FirstName == "" || input.LastName == "" || input.MobileNumber == "" {
		return domain.Principal{}, "", domain.ErrMissingFields
	}

	if _, err := uc.identities.GetAccountByEmail(ctx, email); err == nil {
		return domain.Principal{}, "", domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Principal{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Principal{}, "", errors.Wrap(err, "AccountUsecase.Register: hashing failed")
	}

	principal, err := uc.identities.CreateAccount(ctx, domain.Account{
		Principal: domain.Principal{
			Email:        email,
			FirstName:    input.FirstName,
			LastName:     input.LastName,
			MobileNumber: input.MobileNumber,
			Role:         domain.RoleCitizen,
		},
		PasswordHash: string(hash),
	})
	if err != nil {
		return domain.Principal{}, "", err
	}

	token, err := uc.issuer.Issue(principal.ID, time.Now())
	if err != nil {
		return domain.Principal{}, "", errors.Wrap(err, "AccountUsecase.Register: credential issue failed")
	}

	return principal, token, nil
}

// Login exchanges email and password for a credential. Unknown email
// and wrong password are indistinguishable to the caller.
func (uc *AccountUsecase) Login(ctx context.Context, email, password string) (domain.Principal, string, error) {
	account, err := uc.identities.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, "", domain.ErrInvalidLogin
		}
		return domain.Principal{}, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return domain.Principal{}, "", domain.ErrInvalidLogin
	}

	token, err := uc.issuer.Issue(account.ID, time.Now())
	if err != nil {
		return domain.Principal{}, "", errors.Wrap(err, "AccountUsecase.Login: credential issue failed")
	}

	return account.Principal, token, nil
}

// UpdateLocation registers a worker's own coordinates, feeding the
// worker directory used by proximity assignment.
func (uc *AccountUsecase) UpdateLocation(ctx context.Context, actor domain.Principal, loc domain.Location) (domain.Principal, error) {
	if actor.Role != domain.RoleWorker {
		return domain.Principal{}, domain.ErrForbidden
	}
	if !loc.Valid() {
		return domain.Principal{}, domain.ErrInvalidLocation
	}
	return uc.identities.SetLocation(ctx, actor.ID, loc)
}

// Workers lists worker accounts for the reassignment surface.
func (uc *AccountUsecase) Workers(ctx context.Context) ([]domain.Principal, error) {
	return uc.identities.ListWorkers(ctx)
}
