package tenancy

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvia/revenue-engine/internal/apperrors"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) (*Vault, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	vault, err := NewVault(NewStore(mock), "jwt-secret", testKeyHex, nil)
	require.NoError(t, err)
	return vault, mock
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestNewVaultRejectsBadKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewVault(NewStore(mock), "s", "not-hex", nil)
	assert.Error(t, err)

	_, err = NewVault(NewStore(mock), "s", "abcd", nil)
	assert.ErrorContains(t, err, "32 bytes")
}

func TestResolveContext(t *testing.T) {
	vault, mock := newTestVault(t)

	mock.ExpectQuery("SELECT user_id, clinic_id, role, active").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "clinic_id", "role", "active"}).
			AddRow("user-1", "clinic-1", "receptionist", true))

	tc, err := vault.ResolveContext(context.Background(), signToken(t, "jwt-secret", "user-1"))
	require.NoError(t, err)
	assert.Equal(t, "clinic-1", tc.ClinicID)
	assert.Equal(t, RoleReceptionist, tc.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveContextBadToken(t *testing.T) {
	vault, _ := newTestVault(t)

	_, err := vault.ResolveContext(context.Background(), "garbage")
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)

	_, err = vault.ResolveContext(context.Background(), signToken(t, "other-secret", "user-1"))
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)

	_, err = vault.ResolveContext(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestResolveContextNoMembership(t *testing.T) {
	vault, mock := newTestVault(t)

	mock.ExpectQuery("SELECT user_id, clinic_id, role, active").
		WithArgs("user-2").
		WillReturnError(errNoRowsForTest())

	_, err := vault.ResolveContext(context.Background(), signToken(t, "jwt-secret", "user-2"))
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestGetCredentialsRoundTrip(t *testing.T) {
	vault, mock := newTestVault(t)

	nonce := make([]byte, 12)
	_, err := rand.Read(nonce)
	require.NoError(t, err)

	sealed, err := vault.Seal("clinic-1", Credentials{
		CommerceCode: "597055555532",
		APIKey:       "579B532A7440BB0C",
	}, nonce)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT clinic_id, provider, environment, ciphertext, nonce").
		WithArgs("clinic-1", "webpay", "sandbox").
		WillReturnRows(pgxmock.NewRows([]string{"clinic_id", "provider", "environment", "ciphertext", "nonce", "updated_at"}).
			AddRow("clinic-1", "webpay", "sandbox", sealed, nonce, time.Now()))

	creds, err := vault.GetCredentials(context.Background(), "clinic-1", "webpay", "sandbox")
	require.NoError(t, err)
	assert.Equal(t, "597055555532", creds.CommerceCode)
	assert.Equal(t, "579B532A7440BB0C", creds.APIKey)
	assert.Equal(t, "webpay", creds.Provider)
}

// A ciphertext sealed for one clinic must not decrypt under another clinic id,
// even if the row were somehow returned for the wrong tenant.
func TestGetCredentialsCrossTenantSealed(t *testing.T) {
	vault, mock := newTestVault(t)

	nonce := make([]byte, 12)
	_, err := rand.Read(nonce)
	require.NoError(t, err)

	sealedForB, err := vault.Seal("clinic-b", Credentials{AccessToken: "APP_USR-b-token"}, nonce)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT clinic_id, provider, environment, ciphertext, nonce").
		WithArgs("clinic-a", "mercadopago", "production").
		WillReturnRows(pgxmock.NewRows([]string{"clinic_id", "provider", "environment", "ciphertext", "nonce", "updated_at"}).
			AddRow("clinic-a", "mercadopago", "production", sealedForB, nonce, time.Now()))

	_, err = vault.GetCredentials(context.Background(), "clinic-a", "mercadopago", "production")
	assert.ErrorIs(t, err, apperrors.ErrCredentialResolution)
}

func TestGetCredentialsMissingRowFailsClosed(t *testing.T) {
	vault, mock := newTestVault(t)

	mock.ExpectQuery("SELECT clinic_id, provider, environment, ciphertext, nonce").
		WithArgs("clinic-1", "webpay", "production").
		WillReturnError(errNoRowsForTest())

	_, err := vault.GetCredentials(context.Background(), "clinic-1", "webpay", "production")
	assert.ErrorIs(t, err, apperrors.ErrCredentialResolution)
}

func TestSealRejectsBadNonce(t *testing.T) {
	vault, _ := newTestVault(t)
	_, err := vault.Seal("clinic-1", Credentials{}, []byte{1, 2, 3})
	assert.Error(t, err)
}

func errNoRowsForTest() error {
	return pgx.ErrNoRows
}
