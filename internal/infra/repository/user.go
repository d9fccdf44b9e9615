package repository

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/civicworks/civicd/internal/domain"
	"github.com/civicworks/civicd/internal/infra/database/models"
)

// UserRepository persists accounts and serves principal lookups. The
// by-id lookup sits on every authenticated request, so resolved
// principals are held in a small in-process cache and invalidated on
// profile writes.
type UserRepository struct {
	db        *gorm.DB
	principal *gocache.Cache
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		db:        db,
		principal: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

func principalCacheKey(id int64) string {
	return "principal:" + strconv.FormatInt(id, 10)
}

func (r *UserRepository) GetPrincipalByID(ctx context.Context, id int64) (domain.Principal, error) {
	if cached, ok := r.principal.Get(principalCacheKey(id)); ok {
		return cached.(domain.Principal), nil
	}

	var model models.User
	if err := r.db.WithContext(ctx).Take(&model, id).Error; err != nil {
		return domain.Principal{}, wrapStorage(err)
	}

	principal := principalFromModel(model)
	r.principal.Set(principalCacheKey(id), principal, gocache.DefaultExpiration)
	return principal, nil
}

func (r *UserRepository) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	var model models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&model).Error; err != nil {
		return domain.Account{}, wrapStorage(err)
	}
	return domain.Account{
		Principal:    principalFromModel(model),
		PasswordHash: model.PasswordHash,
	}, nil
}

func (r *UserRepository) FindByEmailOrPhone(ctx context.Context, identifier string) (domain.Principal, error) {
	var model models.User
	err := r.db.WithContext(ctx).
		Where("email = ? OR mobile_number = ?", identifier, identifier).
		Take(&model).Error
	if err != nil {
		return domain.Principal{}, wrapStorage(err)
	}
	return principalFromModel(model), nil
}

func (r *UserRepository) CreateAccount(ctx context.Context, account domain.Account) (domain.Principal, error) {
	model := models.User{
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		FirstName:    account.FirstName,
		LastName:     account.LastName,
		MobileNumber: account.MobileNumber,
		Role:         string(account.Role),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Principal{}, translateAccountError(err)
	}
	return principalFromModel(model), nil
}

func (r *UserRepository) SetLocation(ctx context.Context, id int64, loc domain.Location) (domain.Principal, error) {
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"lat": loc.Lat, "lng": loc.Lng}).Error
	if err != nil {
		return domain.Principal{}, wrapStorage(err)
	}

	r.principal.Delete(principalCacheKey(id))

	var model models.User
	if err := r.db.WithContext(ctx).Take(&model, id).Error; err != nil {
		return domain.Principal{}, wrapStorage(err)
	}
	return principalFromModel(model), nil
}

func (r *UserRepository) ListWorkers(ctx context.Context) ([]domain.Principal, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("role = ?", string(domain.RoleWorker)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorage(err)
	}

	workers := make([]domain.Principal, 0, len(rows))
	for _, row := range rows {
		workers = append(workers, principalFromModel(row))
	}
	return workers, nil
}

func (r *UserRepository) ListWorkersWithLocation(ctx context.Context) ([]domain.WorkerCandidate, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND lat IS NOT NULL AND lng IS NOT NULL", string(domain.RoleWorker)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorage(err)
	}

	candidates := make([]domain.WorkerCandidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, domain.WorkerCandidate{
			ID:       row.ID,
			Email:    row.Email,
			Name:     displayName(row),
			Location: domain.Location{Lat: *row.Lat, Lng: *row.Lng},
		})
	}
	return candidates, nil
}

func principalFromModel(model models.User) domain.Principal {
	role, _ := domain.ParseRole(model.Role)
	principal := domain.Principal{
		ID:           model.ID,
		Email:        model.Email,
		FirstName:    model.FirstName,
		LastName:     model.LastName,
		MobileNumber: model.MobileNumber,
		Role:         role,
	}
	if model.Lat != nil && model.Lng != nil {
		principal.Location = &domain.Location{Lat: *model.Lat, Lng: *model.Lng}
	}
	return principal
}

func displayName(model models.User) string {
	return domain.Principal{FirstName: model.FirstName, LastName: model.LastName}.DisplayName()
}

// translateAccountError maps a unique-email violation onto the
// conflict taxonomy; gorm may hand the translated error back wrapped,
// so matching goes through errors.Is.
func translateAccountError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailTaken
	}
	return wrapStorage(err)
}

// wrapStorage maps driver errors to the domain taxonomy. Domain errors
// pass through untouched so precondition failures detected inside a
// transaction keep their meaning.
func wrapStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	default:
		return domain.StorageError{Err: err}
	}
}

func isDomainError(err error) bool {
	switch err.(type) {
	case domain.AuthError, domain.PermissionError, domain.ValidationError,
		domain.ConflictError, domain.NotFoundError, domain.StorageError:
		return true
	}
	return false
}
