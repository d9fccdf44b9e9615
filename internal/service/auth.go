package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/civicworks/civicd/internal/domain"
)

var tracer = otel.Tracer("auth")

// IdentityStore resolves credential subjects to principals.
type IdentityStore interface {
	GetPrincipalByID(ctx context.Context, id int64) (domain.Principal, error)
}

// AuthService verifies bearer credentials and issues new ones at
// login/registration. Verification is read-only: a credential is
// never refreshed or mutated.
type AuthService struct {
	secret     []byte
	ttl        time.Duration
	identities IdentityStore
}

func NewAuthService(secret string, ttl time.Duration, identities IdentityStore) *AuthService {
	return &AuthService{
		secret:     []byte(secret),
		ttl:        ttl,
		identities: identities,
	}
}

// Verify resolves an Authorization header value into a Principal.
// Failures are reported strictly in order: malformed header, expired
// credential, invalid signature/claims, unknown subject. Expiry is
// checked before the signature so an expired credential never
// surfaces as anything else.
func (s *AuthService) Verify(ctx context.Context, rawHeader string) (domain.Principal, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Verify")
	defer span.End()

	token, ok := bearerToken(rawHeader)
	if !ok {
		return domain.Principal{}, domain.ErrMalformedCredential
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		span.RecordError(errors.Wrap(err, "credential does not decode"))
		return domain.Principal{}, domain.ErrCredentialInvalid
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(time.Now()) {
		return domain.Principal{}, domain.ErrCredentialExpired
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		span.RecordError(errors.Wrap(err, "credential verification failed"))
		return domain.Principal{}, domain.ErrCredentialInvalid
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return domain.Principal{}, domain.ErrCredentialInvalid
	}
	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Principal{}, domain.ErrCredentialInvalid
	}

	principal, err := s.identities.GetPrincipalByID(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, domain.ErrPrincipalNotFound
		}
		return domain.Principal{}, errors.Wrap(err, "AuthService.Verify: identity lookup failed")
	}

	return principal, nil
}

// Issue produces a signed credential for the subject. This is the
// credential-issuer side, used only by login and registration.
func (s *AuthService) Issue(subjectID int64, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subjectID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
