package tenancy

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// Credentials is the decrypted secret material for one gateway. Which fields
// are populated depends on the provider: MercadoPago uses AccessToken,
// Webpay uses CommerceCode plus APIKey.
type Credentials struct {
	Provider     string `json:"provider"`
	Environment  string `json:"environment"`
	AccessToken  string `json:"access_token,omitempty"`
	CommerceCode string `json:"commerce_code,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
}

// Vault resolves tenant context from bearer tokens and serves decrypted,
// tenant-scoped payment credentials. Credential resolution fails closed:
// a missing row or a decrypt failure rejects the payment rather than
// substituting shared defaults.
type Vault struct {
	store     *Store
	jwtSecret []byte
	aead      cipher.AEAD
	logger    *logging.Logger
}

// NewVault creates a vault. keyHex must decode to a 32-byte AES-256 key.
func NewVault(store *Store, jwtSecret string, keyHex string, logger *logging.Logger) (*Vault, error) {
	if logger == nil {
		logger = logging.Default()
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("tenancy: credential key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("tenancy: credential key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("tenancy: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("tenancy: gcm init: %w", err)
	}
	return &Vault{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		aead:      aead,
		logger:    logger,
	}, nil
}

// ResolveContext verifies the bearer token and looks up the user's active
// clinic association. Token problems are authentication failures; a valid
// token without an active membership is an authorization failure.
func (v *Vault) ResolveContext(ctx context.Context, bearerToken string) (Context, error) {
	if bearerToken == "" {
		return Context{}, fmt.Errorf("tenancy: empty token: %w", apperrors.ErrAuthentication)
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(bearerToken, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return Context{}, fmt.Errorf("tenancy: token rejected: %w", apperrors.ErrAuthentication)
	}
	userID := claims.Subject
	if userID == "" {
		return Context{}, fmt.Errorf("tenancy: token has no subject: %w", apperrors.ErrAuthentication)
	}

	membership, err := v.store.ActiveMembership(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	return Context{
		ClinicID: membership.ClinicID,
		UserID:   membership.UserID,
		Role:     membership.Role,
	}, nil
}

// GetCredentials loads and decrypts the credentials for the exact
// (clinic, provider, environment) triple.
func (v *Vault) GetCredentials(ctx context.Context, clinicID, provider, environment string) (*Credentials, error) {
	row, err := v.store.CredentialRow(ctx, clinicID, provider, environment)
	if err != nil {
		return nil, err
	}

	plaintext, err := v.aead.Open(nil, row.Nonce, row.Ciphertext, []byte(clinicID))
	if err != nil {
		v.logger.Error("credential decrypt failed",
			"clinic_id", clinicID, "provider", provider, "environment", environment)
		return nil, fmt.Errorf("tenancy: decrypt for clinic %s: %w", clinicID, apperrors.ErrCredentialResolution)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("tenancy: credential payload malformed: %w", apperrors.ErrCredentialResolution)
	}
	creds.Provider = provider
	creds.Environment = environment
	return &creds, nil
}

// Seal encrypts credentials for storage. The clinic id is bound as
// authenticated data so a row copied between tenants will not decrypt.
func (v *Vault) Seal(clinicID string, creds Credentials, nonce []byte) ([]byte, error) {
	if len(nonce) != v.aead.NonceSize() {
		return nil, fmt.Errorf("tenancy: nonce must be %d bytes", v.aead.NonceSize())
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("tenancy: marshal credentials: %w", err)
	}
	return v.aead.Seal(nil, nonce, plaintext, []byte(clinicID)), nil
}
