// Package risk evaluates login attempts against the actor's last known-good
// attempt and decides when a step-up challenge is required.
package risk

import (
	"strings"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

// EvaluateRisk compares attempt with the most recent successful attempt.
// With no prior success only the device check runs. A country change
// suppresses new_city; impossible_travel can accompany new_country.
// Locations missing on either side are not compared.
func EvaluateRisk(attempt domain.LoginAttempt, lastSuccess *domain.LoginAttempt, travelThreshold time.Duration) domain.RiskAssessment {
	if travelThreshold <= 0 {
		travelThreshold = domain.DefaultTravelThreshold
	}

	codes := []domain.RiskCode{}

	if newDevice(attempt, lastSuccess) {
		codes = append(codes, domain.RiskNewDevice)
	}

	if lastSuccess != nil {
		switch {
		case differs(attempt.Country, lastSuccess.Country):
			codes = append(codes, domain.RiskNewCountry)
			if attempt.At.Sub(lastSuccess.At) < travelThreshold {
				codes = append(codes, domain.RiskImpossibleTravel)
			}
		case differs(attempt.City, lastSuccess.City):
			codes = append(codes, domain.RiskNewCity)
		}
	}

	return domain.RiskAssessment{
		Level: Level(codes),
		Codes: codes,
	}
}

// Level maps risk codes to a coarse level.
func Level(codes []domain.RiskCode) domain.RiskLevel {
	for _, c := range codes {
		if c == domain.RiskImpossibleTravel {
			return domain.RiskHigh
		}
	}
	if len(codes) > 0 {
		return domain.RiskMedium
	}
	return domain.RiskLow
}

// RequiresStepUp gates each signal family behind its toggle, all behind the
// master switch.
func RequiresStepUp(policy domain.StepUpPolicy, codes []domain.RiskCode) bool {
	if !policy.Enabled {
		return false
	}
	for _, c := range codes {
		switch c {
		case domain.RiskNewCity, domain.RiskNewCountry:
			if policy.OnGeo {
				return true
			}
		case domain.RiskNewDevice:
			if policy.OnNewDevice {
				return true
			}
		case domain.RiskImpossibleTravel:
			if policy.OnImpossibleTravel {
				return true
			}
		}
	}
	return false
}

func newDevice(attempt domain.LoginAttempt, lastSuccess *domain.LoginAttempt) bool {
	if lastSuccess != nil && lastSuccess.DeviceID == attempt.DeviceID {
		return false
	}
	for _, d := range attempt.KnownDevices {
		if d == attempt.DeviceID {
			return false
		}
	}
	return true
}

func differs(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return !strings.EqualFold(a, b)
}
