package infra

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"proxy-gateway/gateway/domain"
)

var ttlPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]+)$`)

var ttlUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// ParseTTL interpreta o parâmetro expires: "30 min", "2 hours", "1 day",
// durações Go ("90s", "1h30m") ou "never". Vazio devolve def.
// never=true significa rota sem expiração.
func ParseTTL(token string, def time.Duration) (d time.Duration, never bool, err error) {
	tok := strings.ToLower(strings.TrimSpace(token))
	switch tok {
	case "":
		return def, false, nil
	case "never":
		return 0, true, nil
	}

	if d, err := time.ParseDuration(tok); err == nil {
		if d <= 0 {
			return 0, false, fmt.Errorf("%w: %q must be positive", domain.ErrInvalidDuration, token)
		}
		return d, false, nil
	}

	m := ttlPattern.FindStringSubmatch(tok)
	if m == nil {
		return 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidDuration, token)
	}
	unit, ok := ttlUnits[m[2]]
	if !ok {
		return 0, false, fmt.Errorf("%w: unknown unit %q", domain.ErrInvalidDuration, m[2])
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("%w: %q must be positive", domain.ErrInvalidDuration, token)
	}
	v := n * float64(unit)
	if v >= math.MaxInt64 {
		return 0, false, fmt.Errorf("%w: %q is out of range", domain.ErrInvalidDuration, token)
	}
	if d := time.Duration(v); d > 0 {
		return d, false, nil
	}
	return 0, false, fmt.Errorf("%w: %q must be positive", domain.ErrInvalidDuration, token)
}
