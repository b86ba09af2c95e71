// v0
// internal/risk/suggestions.go
package risk

// Suggestion is a fixed qualitative hint attached to a risk result.
type Suggestion struct {
	Kind  string `json:"kind"`
	Icon  string `json:"icon"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

var (
	painSuggestion = Suggestion{
		Kind:  "pain",
		Icon:  "🧘",
		Title: "Pelvic Floor Yoga",
		Text:  "Try deep breathing in Child's Pose to help relax the pelvic floor and reduce intense cramping.",
	}
	fatigueSuggestion = Suggestion{
		Kind:  "fatigue",
		Icon:  "🥬",
		Title: "Iron Absorption",
		Text:  "Your energy is low. Combine iron-rich foods with Vitamin C to boost absorption and fight fatigue.",
	}
	cycleSuggestion = Suggestion{
		Kind:  "cycle",
		Icon:  "📅",
		Title: "Cycle Tracking",
		Text:  "Most recent entries have no period start logged. Irregular cycles are worth mentioning to a gynaecologist.",
	}
)

// Suggest returns the suggestions triggered by a summarized window. Pain and
// fatigue trigger above 6/10; the cycle hint triggers when fewer than
// p.RegularCoverage of the sampled entries carry a period start.
func Suggest(p Profile, w Window) []Suggestion {
	out := []Suggestion{}
	if w.Entries == 0 {
		return out
	}
	if w.AvgPain > severeAverage {
		out = append(out, painSuggestion)
	}
	if w.AvgFatigue > severeAverage {
		out = append(out, fatigueSuggestion)
	}
	if w.PeriodCoverage < p.RegularCoverage {
		out = append(out, cycleSuggestion)
	}
	return out
}
