package tenancy

import "context"

// Role is the user's role within a clinic.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleAgent        Role = "agent"
	RoleReceptionist Role = "receptionist"
	RolePatient      Role = "patient"
)

// Context identifies the authenticated user within a tenant.
type Context struct {
	ClinicID string
	UserID   string
	Role     Role
}

type ctxKey string

const clinicKey ctxKey = "revenue.tenant"

// WithContext stores the resolved tenant context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, clinicKey, tc)
}

// FromContext extracts the tenant context if present.
func FromContext(ctx context.Context) (Context, bool) {
	val := ctx.Value(clinicKey)
	if val == nil {
		return Context{}, false
	}
	tc, ok := val.(Context)
	return tc, ok && tc.ClinicID != ""
}
