package domain

import "time"

// RiskCode is a discrete anomaly detected on a login attempt.
type RiskCode string

const (
	RiskNewDevice        RiskCode = "new_device"
	RiskNewCity          RiskCode = "new_city"
	RiskNewCountry       RiskCode = "new_country"
	RiskImpossibleTravel RiskCode = "impossible_travel"
)

// RiskLevel is the coarse severity of a set of risk codes.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// LoginAttempt describes one login or access attempt.
type LoginAttempt struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId"`
	DeviceID  string    `json:"deviceId"`
	IPAddress string    `json:"ipAddress,omitempty"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	At        time.Time `json:"at"`
	Success   bool      `json:"success"`

	// KnownDevices are devices previously seen for the actor.
	KnownDevices []string `json:"knownDevices,omitempty"`
}

// RiskAssessment is the output of evaluating an attempt.
type RiskAssessment struct {
	Level RiskLevel  `json:"level"`
	Codes []RiskCode `json:"codes"`
}

// Has reports whether code is present in the assessment.
func (a RiskAssessment) Has(code RiskCode) bool {
	for _, c := range a.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// StepUpPolicy gates step-up challenges per signal family.
type StepUpPolicy struct {
	Enabled            bool `json:"enabled" yaml:"enabled"`
	OnGeo              bool `json:"onGeo" yaml:"onGeo"`
	OnNewDevice        bool `json:"onNewDevice" yaml:"onNewDevice"`
	OnImpossibleTravel bool `json:"onImpossibleTravel" yaml:"onImpossibleTravel"`
}

// TrustPolicy controls trusted-device grants after step-up.
type TrustPolicy struct {
	TrustAfterStepUp bool          `json:"trustAfterStepUp" yaml:"trustAfterStepUp"`
	MaxTrusted       int           `json:"maxTrusted" yaml:"maxTrusted"`
	TrustDuration    time.Duration `json:"trustDuration" yaml:"trustDuration"`
}

// TrustedDevice is a device granted a time-boxed exemption from step-up.
type TrustedDevice struct {
	ID             string     `json:"id"`
	ActorID        string     `json:"actorId"`
	Trusted        bool       `json:"trusted"`
	TrustExpiresAt *time.Time `json:"trustExpiresAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

// TrustedAt reports whether trust is effective at now.
// Trust without an expiry is never effective.
func (d TrustedDevice) TrustedAt(now time.Time) bool {
	if !d.Trusted || d.RevokedAt != nil || d.TrustExpiresAt == nil {
		return false
	}
	return d.TrustExpiresAt.After(now)
}
