// v0
// internal/similarity/query.go
package similarity

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidQuery is returned by strict parsing for unparseable parameters.
var ErrInvalidQuery = errors.New("invalid comparison query")

// ParseQuery reads pain, irregular and junkFoods from q. Missing parameters
// are 0. Unparseable ones are 0 as well unless strict is set, in which case
// an error naming the parameter is returned.
func ParseQuery(q url.Values, strict bool) (Input, error) {
	var in Input
	var err error
	if in.Pain, err = parseFloat(q.Get("pain")); err != nil && strict {
		return Input{}, fmt.Errorf("%w: pain %q", ErrInvalidQuery, q.Get("pain"))
	}
	if in.Irregular, err = parseInt(q.Get("irregular")); err != nil && strict {
		return Input{}, fmt.Errorf("%w: irregular %q", ErrInvalidQuery, q.Get("irregular"))
	}
	if in.JunkFoods, err = parseInt(q.Get("junkFoods")); err != nil && strict {
		return Input{}, fmt.Errorf("%w: junkFoods %q", ErrInvalidQuery, q.Get("junkFoods"))
	}
	return in, nil
}

func parseFloat(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

// parseInt accepts integers and truncates decimals ("1.7" is 1).
func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := parseFloat(raw)
	if err != nil || math.Abs(f) > math.MaxInt32 {
		return 0, errors.New("not an integer")
	}
	return int(f), nil
}
