package processapplication

import "time"

type Config struct {
	Timeout time.Duration
}
