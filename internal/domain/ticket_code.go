package domain

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	DefaultTicketCodePrefix = "TKT-"
	DefaultTicketCodeLength = 6

	ticketCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// TicketCodeGenerator produces candidate ticket codes. Uniqueness is the
// caller's concern.
type TicketCodeGenerator func() (string, error)

// RandomTicketCodes returns a generator of prefix + length characters, each
// drawn uniformly from A-Z0-9.
func RandomTicketCodes(prefix string, length int) TicketCodeGenerator {
	if length <= 0 {
		length = DefaultTicketCodeLength
	}
	max := big.NewInt(int64(len(ticketCodeAlphabet)))
	return func() (string, error) {
		var sb strings.Builder
		sb.Grow(len(prefix) + length)
		sb.WriteString(prefix)
		for i := 0; i < length; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", errors.Wrap(err, "generate ticket code")
			}
			sb.WriteByte(ticketCodeAlphabet[n.Int64()])
		}
		return sb.String(), nil
	}
}

// NormalizeTicketCode canonicalises a scanned or typed code.
func NormalizeTicketCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
