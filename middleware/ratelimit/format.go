package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

func setInt(h http.Header, key string, v int64) {
	h.Set(key, strconv.FormatInt(v, 10))
}

func setFloat(h http.Header, key string, v float64) {
	h.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
}

// setSeconds arredonda para cima, mínimo 1s.
func setSeconds(h http.Header, key string, d time.Duration) {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	setInt(h, key, secs)
}
