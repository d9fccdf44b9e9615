package domain

// Role is the closed set of principal roles.
type Role string

const (
	RoleCitizen Role = "Citizen"
	RoleWorker  Role = "Worker"
	RoleAdmin   Role = "Admin"
	RoleService Role = "Service"
)

// ParseRole rejects anything outside the four known roles.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCitizen, RoleWorker, RoleAdmin, RoleService:
		return Role(s), true
	}
	return "", false
}

// Principal is the resolved identity of the caller for the duration
// of one request. It is produced by credential verification and never
// persisted by the core.
type Principal struct {
	ID           int64     `json:"-"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	MobileNumber string    `json:"mobileNumber"`
	Role         Role      `json:"role"`
	Location     *Location `json:"location,omitempty"`
}

func (p Principal) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

// Account is a principal together with its stored login secret. Only
// the identity store and the account usecase ever see it.
type Account struct {
	Principal
	PasswordHash string
}

// WorkerCandidate is the read-only projection used during
// nearest-worker search.
type WorkerCandidate struct {
	ID       int64    `json:"-"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
}
