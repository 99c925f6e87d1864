package recommendation

import (
	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/common/logger"
)

const (
	DefaultDocThreshold            = 2
	DefaultLowIncomeThreshold      = 500.0
	DefaultHighFamilySizeThreshold = 6

	// OCRVolumeThreshold is the total OCR length above which documentation
	// counts as extensive.
	OCRVolumeThreshold = 1000
)

// Rule identifies which rule produced a recommendation.
type Rule string

const (
	RuleApprovedLowIncome   Rule = "approved_low_income"
	RuleApprovedLargeFamily Rule = "approved_large_family"
	RuleApproved            Rule = "approved"
	RuleLowIncome           Rule = "low_income"
	RuleLargeFamily         Rule = "large_family"
	RuleThoroughDocs        Rule = "thorough_documentation"
	RuleProactiveDocs       Rule = "proactive_documentation"
	RuleNoEmployment        Rule = "no_employment_history"
	RuleNegativeNetWorth    Rule = "negative_net_worth"
	RuleFallback            Rule = "request_documents"
)

const (
	MsgApprovedLowIncome   = "Congratulations on approval! Given your current financial situation, we strongly recommend exploring immediate financial support options and basic aid programs in addition to career counseling."
	MsgApprovedLargeFamily = "You're approved! Given your larger family size, we recommend family-focused financial planning, career counseling, and job matching services."
	MsgApproved            = "Congratulations! Since you're eligible, we recommend exploring upskilling programs, career counseling, and job matching services."
	MsgLowIncome           = "Your income indicates you might be eligible for basic financial assistance. Please provide additional supporting documents such as income statements or bank statements for further evaluation."
	MsgLargeFamily         = "Given your family size, you may qualify for family-oriented financial support. We suggest submitting additional documents like identification and proof of family members for further assessment."
	MsgThoroughDocs        = "Thank you for providing extensive documentation. We recommend exploring various upskilling programs, career counseling, and tailored job matching services."
	MsgProactiveDocs       = "Your detailed documents suggest a proactive approach. We encourage you to consider advanced career development and professional training opportunities."
	MsgNoEmployment        = "Your resume lacks clear employment history. Consider entry-level training and career counseling."
	MsgNegativeNetWorth    = "Your financial data indicates significant liabilities. We recommend financial counseling and debt management programs."
	MsgFallback            = "To better assist you, please provide additional supporting documents (e.g., bank statements, identification, or credit reports) so we can offer more precise recommendations."

	// MsgUnavailable is used by callers when recommendation itself fails.
	MsgUnavailable = "We were unable to generate a recommendation at this time."
)

// Signals is everything the rules look at. The zero value of every field is
// the documented default for a missing input.
type Signals struct {
	Eligibility     eligibility.Label
	Income          float64
	FamilySize      int
	DocumentCount   int
	OCRTextLength   int
	EmploymentCount int
	NetWorth        float64
}

type Outcome struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

type rule struct {
	id      Rule
	message string
	match   func(Config, Signals) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{RuleApprovedLowIncome, MsgApprovedLowIncome, func(c Config, s Signals) bool {
		return s.Eligibility == eligibility.Approved && s.Income < c.LowIncomeThreshold
	}},
	{RuleApprovedLargeFamily, MsgApprovedLargeFamily, func(c Config, s Signals) bool {
		return s.Eligibility == eligibility.Approved && s.FamilySize >= c.HighFamilySizeThreshold
	}},
	{RuleApproved, MsgApproved, func(c Config, s Signals) bool {
		return s.Eligibility == eligibility.Approved
	}},
	{RuleLowIncome, MsgLowIncome, func(c Config, s Signals) bool {
		return s.Income < c.LowIncomeThreshold
	}},
	{RuleLargeFamily, MsgLargeFamily, func(c Config, s Signals) bool {
		return s.FamilySize >= c.HighFamilySizeThreshold
	}},
	{RuleThoroughDocs, MsgThoroughDocs, func(c Config, s Signals) bool {
		return s.DocumentCount >= c.DocThreshold
	}},
	{RuleProactiveDocs, MsgProactiveDocs, func(c Config, s Signals) bool {
		return s.OCRTextLength > OCRVolumeThreshold
	}},
	{RuleNoEmployment, MsgNoEmployment, func(c Config, s Signals) bool {
		return s.EmploymentCount == 0
	}},
	{RuleNegativeNetWorth, MsgNegativeNetWorth, func(c Config, s Signals) bool {
		return s.NetWorth < 0
	}},
}

type Policy struct {
	cfg    Config
	logger logger.Logger
}

func NewPolicy(cfg Config, log logger.Logger) *Policy {
	return &Policy{cfg: cfg, logger: log}
}

func (p *Policy) Config() Config {
	return p.cfg
}

// Generate returns the recommendation text for s.
func (p *Policy) Generate(s Signals) string {
	return p.Evaluate(s).Message
}

// Evaluate also reports which rule fired.
func (p *Policy) Evaluate(s Signals) Outcome {
	for _, r := range rules {
		if r.match(p.cfg, s) {
			p.logger.Debug("Recommendation rule matched", map[string]interface{}{"rule": string(r.id)})
			return Outcome{Rule: r.id, Message: r.message}
		}
	}
	return Outcome{Rule: RuleFallback, Message: MsgFallback}
}
