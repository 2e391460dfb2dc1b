package utils

import "time"

// Now is the clock used throughout the coordinator; overridable in tests.
var Now = time.Now
