package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// CredentialsSource serves decrypted, tenant-scoped gateway credentials.
type CredentialsSource interface {
	GetCredentials(ctx context.Context, clinicID, provider, environment string) (*tenancy.Credentials, error)
}

// SelectorConfig is the explicit selection policy. MockMode is a plain
// configuration value so tests can force either branch; it is never read
// from the environment inside this package.
type SelectorConfig struct {
	MockMode         bool
	Mock             *MockGateway
	ReturnBase       string        // base URL for MercadoPago per-outcome returns
	NotifyBase       string        // MercadoPago webhook base; the clinic id is appended
	WebpayReturnBase string        // Webpay return base; "{clinicID}/return" is appended
	MercadoPagoAPI   string        // optional host override
	WebpayAPI        string        // optional host override
	Timeout          time.Duration // HTTP timeout for gateway calls, default 5s
}

// Selector routes checkout operations to the right adapter for a clinic.
// Mock mode wins unconditionally over any clinic preference.
type Selector struct {
	cfg    SelectorConfig
	vault  CredentialsSource
	logger *logging.Logger
}

// NewSelector creates the gateway selector.
func NewSelector(cfg SelectorConfig, vault CredentialsSource, logger *logging.Logger) *Selector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Selector{cfg: cfg, vault: vault, logger: logger}
}

// ForClinic returns the gateway for the clinic's preferred provider and
// environment. Credential resolution fails closed: no credentials, no
// gateway.
func (s *Selector) ForClinic(ctx context.Context, clinicID, provider, environment string) (Gateway, error) {
	if s.cfg.MockMode {
		if s.cfg.Mock == nil {
			return nil, fmt.Errorf("payments: mock mode enabled without a mock gateway")
		}
		return s.cfg.Mock, nil
	}

	switch Provider(provider) {
	case ProviderMercadoPago:
		creds, err := s.vault.GetCredentials(ctx, clinicID, provider, environment)
		if err != nil {
			return nil, err
		}
		return NewMercadoPagoGateway(creds.AccessToken, s.cfg.ReturnBase, s.NotifyURLFor(clinicID), s.logger).
			WithBaseURL(s.cfg.MercadoPagoAPI).WithTimeout(s.cfg.Timeout), nil
	case ProviderWebpay:
		creds, err := s.vault.GetCredentials(ctx, clinicID, provider, environment)
		if err != nil {
			return nil, err
		}
		return NewWebpayGateway(creds.CommerceCode, creds.APIKey, Environment(environment), s.ReturnURLFor(clinicID), s.logger).
			WithBaseURL(s.cfg.WebpayAPI).WithTimeout(s.cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("payments: unknown provider %q for clinic %s", provider, clinicID)
	}
}

// NotifyURLFor builds the per-clinic MercadoPago notification URL. The shape
// must match the webhook route, which carries the clinic id as a path value.
func (s *Selector) NotifyURLFor(clinicID string) string {
	return strings.TrimRight(s.cfg.NotifyBase, "/") + "/" + clinicID
}

// ReturnURLFor builds the per-clinic Webpay return URL.
func (s *Selector) ReturnURLFor(clinicID string) string {
	return strings.TrimRight(s.cfg.WebpayReturnBase, "/") + "/" + clinicID + "/return"
}
