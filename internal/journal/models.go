// v0
// internal/journal/models.go
package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for every journal date field.
const DateLayout = "2006-01-02"

// MaxLevel is the upper bound of the pain and fatigue scales.
const MaxLevel = 10

var (
	// ErrNotFound is returned when a lookup or delete targets an unknown entry.
	ErrNotFound = errors.New("journal entry not found")
	// ErrInvalidEntry wraps every validation failure of incoming entries.
	ErrInvalidEntry = errors.New("invalid journal entry")
	// ErrDuplicate is returned when an entry with the same ID already exists.
	ErrDuplicate = errors.New("journal entry already exists")
)

// Category classifies a food entry.
type Category string

const (
	CategoryHealthy  Category = "healthy"
	CategoryJunk     Category = "junk"
	CategorySugar    Category = "sugar"
	CategoryCaffeine Category = "caffeine"
)

// ParseCategory normalizes a raw category label.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryHealthy, CategoryJunk, CategorySugar, CategoryCaffeine:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown food category %q", ErrInvalidEntry, raw)
	}
}

// SymptomEntry is one day of self-reported symptoms. Entries are never
// mutated after they are stored.
type SymptomEntry struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Pain        float64   `json:"pain"`
	Fatigue     float64   `json:"fatigue"`
	Mood        string    `json:"mood"`
	PeriodStart string    `json:"periodStart,omitempty"`
	PeriodEnd   string    `json:"periodEnd,omitempty"`
	Acne        bool      `json:"acne"`
	HairFall    bool      `json:"hairFall"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasPeriodStart reports whether a period start date was logged with the entry.
func (s SymptomEntry) HasPeriodStart() bool {
	return strings.TrimSpace(s.PeriodStart) != ""
}

// Validate checks the ranges and date formats of a symptom entry. An empty
// Date is allowed; the store fills it with the current day.
func (s SymptomEntry) Validate() error {
	if s.Pain < 0 || s.Pain > MaxLevel {
		return fmt.Errorf("%w: pain %.1f outside 0-%d", ErrInvalidEntry, s.Pain, MaxLevel)
	}
	if s.Fatigue < 0 || s.Fatigue > MaxLevel {
		return fmt.Errorf("%w: fatigue %.1f outside 0-%d", ErrInvalidEntry, s.Fatigue, MaxLevel)
	}
	for field, value := range map[string]string{"date": s.Date, "periodStart": s.PeriodStart, "periodEnd": s.PeriodEnd} {
		if err := validateDate(field, value); err != nil {
			return err
		}
	}
	return nil
}

// FoodEntry is one logged food item. Only the category is used for scoring.
type FoodEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the name, category, and date of a food entry.
func (f FoodEntry) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: food name is required", ErrInvalidEntry)
	}
	if _, err := ParseCategory(string(f.Category)); err != nil {
		return err
	}
	return validateDate("date", f.Date)
}

// CountCategories counts food entries whose category is in the given set.
func CountCategories(foods []FoodEntry, categories ...Category) int {
	n := 0
	for _, f := range foods {
		for _, c := range categories {
			if f.Category == c {
				n++
				break
			}
		}
	}
	return n
}

func validateDate(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return fmt.Errorf("%w: %s %q is not a %s date", ErrInvalidEntry, field, value, DateLayout)
	}
	return nil
}
