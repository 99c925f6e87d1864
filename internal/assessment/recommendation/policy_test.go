package recommendation

import (
	"testing"

	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

// neutral matches no rule: declined, mid income, small family, no documents,
// some employment, zero net worth.
func neutral() Signals {
	return Signals{
		Eligibility:     eligibility.Declined,
		Income:          1000,
		FamilySize:      2,
		EmploymentCount: 1,
	}
}

func TestPolicy_Evaluate(t *testing.T) {
	p := NewPolicy(DefaultConfig(), logger.NewTestLogger(t))

	tests := []struct {
		name   string
		mutate func(*Signals)
		want   Rule
		msg    string
	}{
		{"approved low income", func(s *Signals) { s.Eligibility = eligibility.Approved; s.Income = 100 }, RuleApprovedLowIncome, MsgApprovedLowIncome},
		{"approved large family", func(s *Signals) { s.Eligibility = eligibility.Approved; s.FamilySize = 6 }, RuleApprovedLargeFamily, MsgApprovedLargeFamily},
		{"approved general", func(s *Signals) { s.Eligibility = eligibility.Approved }, RuleApproved, MsgApproved},
		{"declined low income", func(s *Signals) { s.Income = 499.99 }, RuleLowIncome, MsgLowIncome},
		{"declined large family", func(s *Signals) { s.FamilySize = 7 }, RuleLargeFamily, MsgLargeFamily},
		{"document count at threshold", func(s *Signals) { s.DocumentCount = 2 }, RuleThoroughDocs, MsgThoroughDocs},
		{"ocr volume above threshold", func(s *Signals) { s.OCRTextLength = 1001 }, RuleProactiveDocs, MsgProactiveDocs},
		{"ocr volume at threshold does not match", func(s *Signals) { s.OCRTextLength = 1000 }, RuleFallback, MsgFallback},
		{"no employment", func(s *Signals) { s.EmploymentCount = 0 }, RuleNoEmployment, MsgNoEmployment},
		{"negative net worth", func(s *Signals) { s.NetWorth = -1 }, RuleNegativeNetWorth, MsgNegativeNetWorth},
		{"all neutral", func(s *Signals) {}, RuleFallback, MsgFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := neutral()
			tt.mutate(&s)
			out := p.Evaluate(s)
			assert.Equal(t, tt.want, out.Rule)
			assert.Equal(t, tt.msg, out.Message)
			assert.Equal(t, tt.msg, p.Generate(s))
		})
	}
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	p := NewPolicy(DefaultConfig(), logger.NewTestLogger(t))

	// matches rules 1, 2, 3, 4, 5, 6, 7, 8 and 9 at once
	s := Signals{
		Eligibility:   eligibility.Approved,
		Income:        100,
		FamilySize:    8,
		DocumentCount: 5,
		OCRTextLength: 5000,
		NetWorth:      -10,
	}
	assert.Equal(t, RuleApprovedLowIncome, p.Evaluate(s).Rule)

	s.Income = 1000
	assert.Equal(t, RuleApprovedLargeFamily, p.Evaluate(s).Rule)

	s.Eligibility = eligibility.Declined
	s.Income = 100
	assert.Equal(t, RuleLowIncome, p.Evaluate(s).Rule)
}

func TestPolicy_ZeroSignals(t *testing.T) {
	p := NewPolicy(DefaultConfig(), logger.NewTestLogger(t))
	// missing inputs default to zero, so income 0 < 500 fires the low-income rule
	assert.Equal(t, RuleLowIncome, p.Evaluate(Signals{}).Rule)
}

func TestPolicy_Deterministic(t *testing.T) {
	p := NewPolicy(DefaultConfig(), logger.NewNoOpLogger())
	s := neutral()
	s.DocumentCount = 3
	assert.Equal(t, p.Evaluate(s), p.Evaluate(s))
}

func TestPolicy_CustomConfig(t *testing.T) {
	p := NewPolicy(Config{DocThreshold: 5, LowIncomeThreshold: 50, HighFamilySizeThreshold: 10}, logger.NewTestLogger(t))

	s := neutral()
	s.Income = 100
	s.FamilySize = 7
	s.DocumentCount = 3
	assert.Equal(t, RuleFallback, p.Evaluate(s).Rule)
}

func TestConfigFromRaw(t *testing.T) {
	log := logger.NewTestLogger(t)

	tests := []struct {
		name string
		raw  RawConfig
		want Config
	}{
		{"unset", RawConfig{}, DefaultConfig()},
		{"valid", RawConfig{"3", "750.5", "5"}, Config{3, 750.5, 5}},
		{"fractional count rejected", RawConfig{"2.5", "", "x"}, DefaultConfig()},
		{"negative rejected", RawConfig{"-1", "-2", "-3"}, DefaultConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFromRaw(tt.raw, log))
		})
	}
}
