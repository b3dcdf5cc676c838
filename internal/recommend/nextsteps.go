package recommend

import "github.com/ymzhao/go-car-advisor/internal/domain"

// StepProposal is a suggested follow-up action before persistence; the
// orchestrator attaches identities and foreign keys.
type StepProposal struct {
	TitleEN       string
	TitleZH       string
	DescriptionEN string
	DescriptionZH string
	Priority      string
	ActionType    string
}

// SuggestNextSteps derives follow-up actions from the matches of one turn.
// Deterministic: the same matches always yield the same proposals.
func SuggestNextSteps(matches []Match) []StepProposal {
	var out []StepProposal
	if len(matches) > 0 {
		out = append(out,
			StepProposal{
				TitleEN:       "Book a test drive",
				TitleZH:       "预约试驾",
				DescriptionEN: "Try the recommended models in person before deciding.",
				DescriptionZH: "在做决定之前，亲自试驾推荐的车型。",
				Priority:      domain.PriorityHigh,
				ActionType:    domain.ActionVisit,
			},
			StepProposal{
				TitleEN:       "Compare trims and prices",
				TitleZH:       "比较配置和价格",
				DescriptionEN: "Check trim levels and local pricing for the shortlisted cars.",
				DescriptionZH: "查看候选车型的配置级别和当地价格。",
				Priority:      domain.PriorityMedium,
				ActionType:    domain.ActionResearch,
			},
		)
	}
	out = append(out, StepProposal{
		TitleEN:       "Review your budget",
		TitleZH:       "核对您的预算",
		DescriptionEN: "Confirm your total budget including insurance and registration.",
		DescriptionZH: "确认包含保险和上牌费用在内的总预算。",
		Priority:      domain.PriorityLow,
		ActionType:    domain.ActionPrepare,
	})
	return out
}
