package domain

const (
	PrincipalCtxKey = "civic-principal"
)
