package flow

import (
	"encoding/json"
	"fmt"
)

// Type is one of the flow strategies a site can run.
type Type string

const (
	TypeProgressive Type = "progressive"
	TypeMinimal     Type = "minimal"
	TypeFrontLoaded Type = "front_loaded"
)

// Types lists every flow strategy in bucket order.
var Types = []Type{TypeProgressive, TypeMinimal, TypeFrontLoaded}

func (t Type) Valid() bool {
	switch t {
	case TypeProgressive, TypeMinimal, TypeFrontLoaded:
		return true
	}
	return false
}

// ParseType validates a flow type coming from outside (HTTP, CLI, DB).
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown flow type %q", s)
	}
	return t, nil
}

// Config is the per-site flow configuration. It is immutable for the
// lifetime of a session.
type Config struct {
	Type           Type `json:"type"`
	QuestionsPerAd int  `json:"questionsPerAd"`
	MaxQuestions   int  `json:"maxQuestions"`
	MaxAds         int  `json:"maxAds"`
	RequireEmail   bool `json:"requireEmail"`
}

// DefaultConfig is used whenever a site has no flow configuration.
func DefaultConfig() Config {
	return Config{
		Type:           TypeProgressive,
		QuestionsPerAd: 2,
		MaxQuestions:   6,
		MaxAds:         3,
		RequireEmail:   true,
	}
}

// partialConfig mirrors Config with every field optional so stored JSON
// can omit any of them.
type partialConfig struct {
	Type           *string `json:"type"`
	QuestionsPerAd *int    `json:"questionsPerAd"`
	MaxQuestions   *int    `json:"maxQuestions"`
	MaxAds         *int    `json:"maxAds"`
	RequireEmail   *bool   `json:"requireEmail"`
}

// ParseConfig decodes a possibly partial flow configuration. Empty input
// yields DefaultConfig; absent fields keep their default values and
// negative counts are clamped to zero.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 || string(data) == "null" {
		return cfg, nil
	}

	var p partialConfig
	if err := json.Unmarshal(data, &p); err != nil {
		return cfg, fmt.Errorf("failed to decode flow config: %w", err)
	}

	if p.Type != nil {
		t, err := ParseType(*p.Type)
		if err != nil {
			return cfg, err
		}
		cfg.Type = t
	}
	if p.QuestionsPerAd != nil {
		cfg.QuestionsPerAd = *p.QuestionsPerAd
	}
	if p.MaxQuestions != nil {
		cfg.MaxQuestions = *p.MaxQuestions
	}
	if p.MaxAds != nil {
		cfg.MaxAds = *p.MaxAds
	}
	if p.RequireEmail != nil {
		cfg.RequireEmail = *p.RequireEmail
	}

	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.QuestionsPerAd < 0 {
		c.QuestionsPerAd = 0
	}
	if c.MaxQuestions < 0 {
		c.MaxQuestions = 0
	}
	if c.MaxAds < 0 {
		c.MaxAds = 0
	}
	if !c.Type.Valid() {
		c.Type = TypeProgressive
	}
	return c
}

// WithType returns a copy of the config running the given strategy.
// Experiments use it to override the site's own type.
func (c Config) WithType(t Type) Config {
	c.Type = t
	return c
}

// TrafficSplit holds the percentage of sessions routed to each flow type.
// Progressive and Minimal default to 33 when unset; FrontLoaded always
// receives the remainder.
type TrafficSplit struct {
	Progressive *int `json:"progressive,omitempty"`
	Minimal     *int `json:"minimal,omitempty"`
	FrontLoaded *int `json:"front_loaded,omitempty"`
}

const defaultSplitPercent = 33

// Buckets returns the effective progressive and minimal percentages.
func (s TrafficSplit) Buckets() (progressive, minimal int) {
	progressive, minimal = defaultSplitPercent, defaultSplitPercent
	if s.Progressive != nil {
		progressive = *s.Progressive
	}
	if s.Minimal != nil {
		minimal = *s.Minimal
	}
	return progressive, minimal
}

// Validate reports splits that cannot be bucketed into 0..100.
func (s TrafficSplit) Validate() error {
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"progressive", s.Progressive},
		{"minimal", s.Minimal},
		{"front_loaded", s.FrontLoaded},
	} {
		if f.v != nil && (*f.v < 0 || *f.v > 100) {
			return fmt.Errorf("traffic split %s must be between 0 and 100, got %d", f.name, *f.v)
		}
	}
	p, m := s.Buckets()
	if p+m > 100 {
		return fmt.Errorf("traffic split progressive+minimal exceeds 100 (%d)", p+m)
	}
	return nil
}
