package pipeline

import (
	"fmt"

	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/siherrmann/pseudonymizer/model"
)

// ApplyPlan produces the pseudonymized document text from a
// replacement plan. It validates that the replacements are ordered
// and non-overlapping before touching the text, so a malformed plan
// never yields partially rewritten output.
func ApplyPlan(text string, plan *model.ReplacementPlan) (string, error) {
	if plan == nil {
		return "", helper.NewError("apply plan", fmt.Errorf("replacement plan is nil"))
	}
	return plan.Apply(text)
}
