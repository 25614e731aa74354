package credit

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTenor converts a tenor label such as "5Y", "6M", "2W" or "30D" into years.
func ParseTenor(tenor string) (float64, error) {
	const op = "parse_tenor"

	s := strings.ToUpper(strings.TrimSpace(tenor))
	if len(s) < 2 {
		return 0, NewRiskError(ErrInvalidTenor, fmt.Sprintf("invalid tenor %q", tenor), op)
	}

	var perYear float64
	switch s[len(s)-1] {
	case 'Y':
		perYear = 1
	case 'M':
		perYear = 12
	case 'W':
		perYear = 52
	case 'D':
		perYear = 365
	default:
		return 0, NewRiskError(ErrInvalidTenor,
			fmt.Sprintf("invalid tenor unit in %q", tenor), op).
			WithConstraint("units", "Y, M, W, D")
	}

	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || !(n > 0) {
		return 0, NewRiskError(ErrInvalidTenor,
			fmt.Sprintf("invalid tenor amount in %q", tenor), op).WithCause(err)
	}

	return n / perYear, nil
}

// ParseTenors parses each label in order. The result must be usable as a
// horizon list, so labels have to be strictly ascending.
func ParseTenors(tenors []string) ([]float64, error) {
	years := make([]float64, len(tenors))
	for i, t := range tenors {
		y, err := ParseTenor(t)
		if err != nil {
			return nil, err
		}
		years[i] = y
	}
	if err := ValidateHorizons(years); err != nil {
		return nil, err
	}
	return years, nil
}
