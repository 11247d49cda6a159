package invoice

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Number generates an invoice number like SK-20260829-3F2A9C.
func Number(now time.Time) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("SK-%s-%06d", now.Format("20060102"), now.UnixNano()%1000000)
	}
	return fmt.Sprintf("SK-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
