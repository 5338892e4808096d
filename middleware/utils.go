package middleware

import (
	"strconv"
	"time"

	uuid "github.com/satori/go.uuid"
)

// GenRequestId returns "<unix seconds>,<uuid v4>".
func GenRequestId() string {
	return strconv.FormatInt(time.Now().Unix(), 10) + "," + uuid.NewV4().String()
}
