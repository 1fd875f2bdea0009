package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

var (
	// ErrTrustCapReached is returned when granting trust would exceed the
	// actor's trusted-device limit. Its message is safe to show to users.
	ErrTrustCapReached = errors.New("you already have the maximum number of trusted devices; remove one to trust this device")

	// ErrTrustDisabled is returned when policy does not allow trust after step-up.
	ErrTrustDisabled = errors.New("trusting devices after step-up is disabled")
)

// ActiveCount counts devices whose trust is effective at now.
func ActiveCount(devices []domain.TrustedDevice, now time.Time) int {
	n := 0
	for _, d := range devices {
		if d.TrustedAt(now) {
			n++
		}
	}
	return n
}

// IsTrusted reports whether deviceID currently holds effective trust.
func IsTrusted(devices []domain.TrustedDevice, deviceID string, now time.Time) bool {
	for _, d := range devices {
		if d.ID == deviceID {
			return d.TrustedAt(now)
		}
	}
	return false
}

// Find returns the device record for deviceID.
func Find(devices []domain.TrustedDevice, deviceID string) (domain.TrustedDevice, bool) {
	for _, d := range devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return domain.TrustedDevice{}, false
}

// GrantTrust is the step-up path of ManualTrust: it fails with
// ErrTrustDisabled unless policy trusts devices after step-up.
func GrantTrust(devices []domain.TrustedDevice, actorID, deviceID string, now time.Time, policy domain.TrustPolicy) ([]domain.TrustedDevice, error) {
	if !policy.TrustAfterStepUp {
		return devices, ErrTrustDisabled
	}
	return ManualTrust(devices, actorID, deviceID, now, policy)
}

// ManualTrust marks deviceID trusted until now+TrustDuration and returns the
// updated list. Expired or revoked trust does not count toward the cap.
// Re-granting an already trusted device extends it without using a slot.
// On error the input is returned unchanged.
func ManualTrust(devices []domain.TrustedDevice, actorID, deviceID string, now time.Time, policy domain.TrustPolicy) ([]domain.TrustedDevice, error) {
	if deviceID == "" {
		return devices, fmt.Errorf("device id is required")
	}

	duration := policy.TrustDuration
	if duration <= 0 {
		duration = domain.DefaultTrustDuration
	}

	if !IsTrusted(devices, deviceID, now) && policy.MaxTrusted > 0 && ActiveCount(devices, now) >= policy.MaxTrusted {
		return devices, ErrTrustCapReached
	}

	expires := now.Add(duration)
	granted := domain.TrustedDevice{
		ID:             deviceID,
		ActorID:        actorID,
		Trusted:        true,
		TrustExpiresAt: &expires,
	}

	out := make([]domain.TrustedDevice, 0, len(devices)+1)
	replaced := false
	for _, d := range devices {
		if d.ID == deviceID {
			out = append(out, granted)
			replaced = true
			continue
		}
		out = append(out, d)
	}
	if !replaced {
		out = append(out, granted)
	}
	return out, nil
}

// RevokeTrust withdraws trust from deviceID, keeping its record.
// Reports false when the device is unknown.
func RevokeTrust(devices []domain.TrustedDevice, deviceID string, now time.Time) ([]domain.TrustedDevice, bool) {
	out := make([]domain.TrustedDevice, len(devices))
	copy(out, devices)
	for i := range out {
		if out[i].ID == deviceID {
			revoked := now
			out[i].Trusted = false
			out[i].RevokedAt = &revoked
			return out, true
		}
	}
	return devices, false
}
