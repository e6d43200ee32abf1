package domain

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// NewID returns a numeric identifier built from the creation time in
// milliseconds plus a random suffix in [0, 1000).
func NewID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli()*1000+rand.Int64N(1000), 10)
}
