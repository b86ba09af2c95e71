// v0
// internal/similarity/aggregate.go
package similarity

import (
	"cyclesense/analysis/internal/dataset"
	"cyclesense/analysis/internal/journal"
)

const (
	cycleWindow     = 30
	regularCoverage = 0.6
)

// dietaryProxyCategories are the food categories counted for the hormone proxy.
var dietaryProxyCategories = []journal.Category{journal.CategoryJunk, journal.CategorySugar, journal.CategoryCaffeine}

// Aggregate turns journal entries into comparator input. symptoms are
// expected most-recent-first. ok is false when no symptoms were logged.
//
// Pain is the mean over all entries rounded to one decimal. The cycle is
// irregular when some, but fewer than 60%, of the 30 most recent entries
// carry a period start.
func Aggregate(symptoms []journal.SymptomEntry, foods []journal.FoodEntry) (Input, bool) {
	if len(symptoms) == 0 {
		return Input{}, false
	}
	var total float64
	for _, s := range symptoms {
		total += s.Pain
	}
	in := Input{
		Pain:      dataset.Round(total/float64(len(symptoms)), 1),
		JunkFoods: journal.CountCategories(foods, dietaryProxyCategories...),
	}

	recent := symptoms
	if len(recent) > cycleWindow {
		recent = recent[:cycleWindow]
	}
	withPeriod := 0
	for _, s := range recent {
		if s.HasPeriodStart() {
			withPeriod++
		}
	}
	if withPeriod > 0 && float64(withPeriod) < float64(len(recent))*regularCoverage {
		in.Irregular = irregularValue
	}
	return in, true
}
