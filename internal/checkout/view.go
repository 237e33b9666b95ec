package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

// View is what the browser renders for a session.
type View struct {
	SessionID      string                 `json:"sessionId"`
	URL            string                 `json:"url"`
	Step           steps.Name             `json:"step"`
	Steps          steps.Steps            `json:"steps"`
	Collective     Collective             `json:"collective"`
	Tier           *Tier                  `json:"tier,omitempty"`
	Details        amount.Details         `json:"details"`
	MinimumAmount  int64                  `json:"minimumAmount"`
	Total          int64                  `json:"total"`
	TotalLabel     string                 `json:"totalLabel"`
	TipOptions     []amount.TipOption     `json:"tipOptions,omitempty"`
	Profile        *Profile               `json:"profile,omitempty"`
	Tax            *TaxInfo               `json:"tax,omitempty"`
	Payment        Payment                `json:"payment"`
	PaymentOptions []paymentmethod.Option `json:"paymentOptions,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Submitting     bool                   `json:"submitting"`
	Submitted      bool                   `json:"submitted"`
	OrderID        string                 `json:"orderId,omitempty"`
	Error          string                 `json:"error,omitempty"`
	StepErrors     map[steps.Name]string  `json:"stepErrors,omitempty"`
}

// View renders the session. Payment options are listed on the Payment step
// only; when they cannot be loaded the list is empty and the failure logged.
func (o *Orchestrator) View(ctx context.Context) View {
	s := o.State()
	v := View{
		SessionID:     s.SessionID,
		URL:           routeOf(s).URL(o.cfg.BaseURL),
		Step:          s.Step,
		Steps:         s.Steps(nil),
		Collective:    s.Collective,
		Tier:          s.Tier,
		Details:       s.Details,
		MinimumAmount: s.Minimum(),
		Total:         s.Total(),
		TotalLabel:    amount.Format(s.Total(), s.Details.Currency),
		Profile:       s.Profile,
		Tax:           s.Tax,
		Payment:       s.Payment,
		Tags:          s.Tags,
		Submitting:    s.Submitting,
		Submitted:     s.Submitted,
		Error:         s.Error,
		StepErrors:    s.StepErrors,
	}
	if s.Order != nil {
		v.OrderID = s.Order.ID
	}
	if s.Collective.PlatformTipEnabled {
		v.TipOptions = o.cfg.Rules.TipMenu.ComputeTipOptions(s.Details.Base(), s.Details.Currency)
	}
	if s.Step == steps.Payment && !s.Submitted {
		opts, err := o.PaymentOptions(ctx)
		if err != nil {
			o.log.Warn("payment options unavailable", zap.Error(err))
		}
		v.PaymentOptions = opts
	}
	return v
}
