package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Principals        *PrincipalRepository
	VerificationCodes *VerificationCodeRepository
	LoginAudit        *LoginAuditRepository
}

// NewRepositories wires all repositories onto one executor, normally the shared pool.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Principals:        NewPrincipalRepository(exec),
		VerificationCodes: NewVerificationCodeRepository(exec),
		LoginAudit:        NewLoginAuditRepository(exec),
	}
}
