package telegram

import (
	"errors"
	"strconv"
	"strings"
)

// parseAmountPaise converts a rupee amount like "1500" or "1500.50" into
// integer paise. At most two decimal places are accepted.
func parseAmountPaise(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	rupees, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || rupees < 0 {
		return 0, errors.New("invalid amount")
	}

	var paise int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, errors.New("invalid amount")
		}
		if len(frac) == 1 {
			frac += "0"
		}
		paise, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || paise < 0 {
			return 0, errors.New("invalid amount")
		}
	}
	return rupees*100 + paise, nil
}
