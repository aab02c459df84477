package flashoffers

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown tracks which patients were offered recently so consecutive
// dispatch runs do not spam the same leads. Keys expire on their own; a nil
// client disables the window entirely.
type Cooldown struct {
	client *redis.Client
	window time.Duration
}

// NewCooldown creates the exclusion window.
func NewCooldown(client *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{client: client, window: window}
}

func cooldownKey(clinicID, patientID string) string {
	return fmt.Sprintf("offers:cooldown:%s:%s", clinicID, patientID)
}

// Active reports whether the patient is inside the exclusion window.
func (c *Cooldown) Active(ctx context.Context, clinicID, patientID string) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, cooldownKey(clinicID, patientID)).Result()
	if err != nil {
		return false, fmt.Errorf("flashoffers: cooldown lookup: %w", err)
	}
	return n > 0, nil
}

// Mark starts the window for the patient.
func (c *Cooldown) Mark(ctx context.Context, clinicID, patientID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, cooldownKey(clinicID, patientID), "1", c.window).Err(); err != nil {
		return fmt.Errorf("flashoffers: cooldown mark: %w", err)
	}
	return nil
}
