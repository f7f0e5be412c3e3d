package orders

import (
	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/approval/migration"
)

const (
	StageDesign     = "Design"
	StageProduction = "Production"
)

// Stage is a position on the stage ladder of the current vocabulary.
type Stage struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Stages returns the ladder for v: Design, then the label of every type after
// the first (the approval being pursued), then Production.
func Stages(v approval.Vocabulary) []string {
	out := make([]string, 0, len(v.Types)+1)
	out = append(out, StageDesign)
	for _, t := range v.Types[1:] {
		out = append(out, t.Label())
	}
	return append(out, StageProduction)
}

// StageAt returns the stage at index on the current ladder, clamped.
func StageAt(index int) Stage {
	ladder := Stages(approval.Current())
	if index < 0 {
		index = 0
	}
	if index >= len(ladder) {
		index = len(ladder) - 1
	}
	return Stage{Index: index, Label: ladder[index]}
}

// StageIndex returns the position of label on the current ladder, or -1.
func StageIndex(label string) int {
	for i, l := range Stages(approval.Current()) {
		if l == label {
			return i
		}
	}
	return -1
}

// MapStage returns the stage of one approval map: the number of leading
// vocabulary types that are approved. Stored maps are brought to the current
// vocabulary first; a map that cannot be read counts as Design.
func MapStage(m *approval.StatusMap) Stage {
	current, err := migration.ToCurrent(m)
	if err != nil {
		return StageAt(0)
	}
	n := 0
	for _, t := range approval.Current().Types {
		if current.Get(t) != approval.StateApproved {
			break
		}
		n++
	}
	return StageAt(n)
}

// DeriveStage computes the stage of an order: the least advanced line, or the
// order-level map when the order has no lines.
func DeriveStage(o Order) Stage {
	if len(o.Lines) == 0 {
		return MapStage(o.ApprovalStatus)
	}
	lowest := MapStage(o.Lines[0].ApprovalStatus)
	for _, l := range o.Lines[1:] {
		if s := MapStage(l.ApprovalStatus); s.Index < lowest.Index {
			lowest = s
		}
	}
	return lowest
}

// StageDrift reports whether the stored stage column disagrees with the
// derived stage.
func StageDrift(o Order) bool {
	return o.CurrentStage != DeriveStage(o).Label
}

// StageCount is the number of orders sitting at one stage.
type StageCount struct {
	Stage
	Count int `json:"count"`
}

// CountStages tallies orders by derived stage. Every stage of the current
// ladder is present, in ladder order.
func CountStages(orders []Order) []StageCount {
	ladder := Stages(approval.Current())
	out := make([]StageCount, len(ladder))
	for i, label := range ladder {
		out[i] = StageCount{Stage: Stage{Index: i, Label: label}}
	}
	for _, o := range orders {
		out[DeriveStage(o).Index].Count++
	}
	return out
}
