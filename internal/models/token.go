package models

import (
	"time"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued together on login or rotation
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
