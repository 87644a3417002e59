package common

import "time"

var (
	Version = `v0.6.1`
	When    = time.Now().Unix()
)
