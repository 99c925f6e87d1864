package createapplicationrecord

import "time"

type Config struct {
	Timeout time.Duration
}
