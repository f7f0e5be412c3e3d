package orders

import (
	"time"

	"github.com/odyssey-erp/fabricflow/internal/risk"
)

// LineView is a line with its computed fields.
type LineView struct {
	OrderLine
	Derived     Derived     `json:"derived"`
	LineLabel   string      `json:"line_label"`
	Combination Combination `json:"combination"`
	Stage       string      `json:"stage"`
	ETDRisk     *risk.Badge `json:"etd_risk"`
}

// OrderView is the read projection of an order.
type OrderView struct {
	Order
	CurrentStage string      `json:"current_stage"`
	StageIndex   int         `json:"stage_index"`
	StoredStage  string      `json:"stored_stage"`
	StageDrift   bool        `json:"stage_drift"`
	ETDRisk      *risk.Badge `json:"etd_risk"`
	Lines        []LineView  `json:"lines"`
}

// NewOrderView derives stage, risk and line totals for o.
func NewOrderView(o Order, classifier risk.Classifier, now time.Time) OrderView {
	stage := DeriveStage(o)
	view := OrderView{
		Order:        o,
		CurrentStage: stage.Label,
		StageIndex:   stage.Index,
		StoredStage:  o.CurrentStage,
		StageDrift:   o.CurrentStage != stage.Label,
		ETDRisk:      classifier.Classify(o.ETD, now),
		Lines:        make([]LineView, 0, len(o.Lines)),
	}
	view.Order.Lines = nil
	for _, l := range o.Lines {
		view.Lines = append(view.Lines, LineView{
			OrderLine:   l,
			Derived:     ComputeDerived(l),
			LineLabel:   LineLabel(l),
			Combination: l.Combination(),
			Stage:       MapStage(l.ApprovalStatus).Label,
			ETDRisk:     classifier.Classify(l.ETD, now),
		})
	}
	return view
}

// AlertCandidate adapts o for the ETD alert builder.
func AlertCandidate(o Order) risk.Candidate {
	return risk.Candidate{
		OrderID:      o.ID,
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		ETD:          o.ETD,
		CurrentStage: DeriveStage(o).Label,
		Closed:       o.Status.IsClosed(),
	}
}
