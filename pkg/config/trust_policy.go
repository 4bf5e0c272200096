package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// TrustPolicy holds the declarative thresholds and cooldowns that govern
// trust graduation and revocation.
type TrustPolicy struct {
	Thresholds ThresholdConfig `yaml:"thresholds" json:"thresholds"`
	Revocation RevocationConfig `yaml:"revocation" json:"revocation"`
}

// ThresholdConfig holds the consecutive-success counts required to propose
// a graduation out of each tier.
type ThresholdConfig struct {
	T3ToT2 int `yaml:"T3_to_T2" json:"T3_to_T2"`
	T2ToT1 int `yaml:"T2_to_T1" json:"T2_to_T1"`
	T1ToT0 int `yaml:"T1_to_T0" json:"T1_to_T0"`
}

// RevocationConfig holds cooldown lengths applied after a denial or a
// trust revocation.
type RevocationConfig struct {
	CooldownAfterDenial     int `yaml:"cooldown_after_denial" json:"cooldown_after_denial"`
	CooldownAfterRevocation int `yaml:"cooldown_after_revocation" json:"cooldown_after_revocation"`
}

// DefaultTrustPolicy returns the built-in thresholds used when no policy
// document is available.
func DefaultTrustPolicy() *TrustPolicy {
	return &TrustPolicy{
		Thresholds: ThresholdConfig{
			T3ToT2: 50,
			T2ToT1: 100,
			T1ToT0: 200,
		},
		Revocation: RevocationConfig{
			CooldownAfterDenial:     50,
			CooldownAfterRevocation: 25,
		},
	}
}

// LoadTrustPolicy reads a trust policy YAML document. A missing or
// unparsable file is not fatal: the built-in defaults are returned and the
// problem is logged at Warn. Zero-valued fields fall back per field so a
// partial document stays usable.
func LoadTrustPolicy(path string, logger *slog.Logger) *TrustPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultTrustPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("trust policy not readable, using defaults", "path", path, "error", err)
		return defaults
	}

	var policy TrustPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		logger.Warn("trust policy not parsable, using defaults", "path", path, "error", err)
		return defaults
	}

	if policy.Thresholds.T3ToT2 <= 0 {
		policy.Thresholds.T3ToT2 = defaults.Thresholds.T3ToT2
	}
	if policy.Thresholds.T2ToT1 <= 0 {
		policy.Thresholds.T2ToT1 = defaults.Thresholds.T2ToT1
	}
	if policy.Thresholds.T1ToT0 <= 0 {
		policy.Thresholds.T1ToT0 = defaults.Thresholds.T1ToT0
	}
	if policy.Revocation.CooldownAfterDenial <= 0 {
		policy.Revocation.CooldownAfterDenial = defaults.Revocation.CooldownAfterDenial
	}
	if policy.Revocation.CooldownAfterRevocation <= 0 {
		policy.Revocation.CooldownAfterRevocation = defaults.Revocation.CooldownAfterRevocation
	}

	return &policy
}

// Validate rejects a policy whose thresholds are non-positive.
func (p *TrustPolicy) Validate() error {
	if p.Thresholds.T3ToT2 <= 0 || p.Thresholds.T2ToT1 <= 0 || p.Thresholds.T1ToT0 <= 0 {
		return fmt.Errorf("trust policy thresholds must be positive: %+v", p.Thresholds)
	}
	if p.Revocation.CooldownAfterDenial < 0 || p.Revocation.CooldownAfterRevocation < 0 {
		return fmt.Errorf("trust policy cooldowns must be non-negative: %+v", p.Revocation)
	}
	return nil
}
