package eligibility

import (
	"fmt"

	"social-support-workers/internal/common/logger"
)

type Label string

const (
	Approved Label = "approved"
	Declined Label = "declined"
)

// Policy decides eligibility from income and family size. The classifier is
// optional; the threshold rule always backs it.
type Policy struct {
	cfg        Config
	classifier Classifier
	logger     logger.Logger
}

func NewPolicy(cfg Config, classifier Classifier, log logger.Logger) *Policy {
	return &Policy{cfg: cfg, classifier: classifier, logger: log}
}

func (p *Policy) Config() Config {
	return p.cfg
}

func (p *Policy) HasClassifier() bool {
	return p.classifier != nil
}

// Assess never fails. Out-of-range inputs are logged and still scored.
func (p *Policy) Assess(income float64, familySize int) Label {
	if income < 0 || familySize < 1 {
		p.logger.Warn("Suspicious eligibility inputs", map[string]interface{}{
			"income":      income,
			"family_size": familySize,
		})
	}

	if p.classifier != nil {
		if label, ok := p.predict(income, familySize); ok {
			return label
		}
	}

	return p.ruleBased(income, familySize)
}

func (p *Policy) predict(income float64, familySize int) (label Label, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Classifier panicked, using threshold rule", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			label, ok = "", false
		}
	}()

	prediction, err := p.classifier.Predict([]float64{income, float64(familySize)})
	if err != nil {
		p.logger.Error("Classifier prediction failed, using threshold rule", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}
	if prediction == 1 {
		return Approved, true
	}
	return Declined, true
}

// ruleBased approves strictly below the threshold product; equality declines.
func (p *Policy) ruleBased(income float64, familySize int) Label {
	threshold := p.cfg.IncomeThreshold * p.cfg.FamilySizeThreshold
	score := income * float64(familySize)
	if score < threshold {
		return Approved
	}
	return Declined
}
