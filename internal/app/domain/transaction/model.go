package transaction

import (
	"crypto/rand"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/apexvault/ledger_engine/internal/app/domain/currency"
)

// Kind classifies a balance-affecting event.
type Kind string

const (
	KindSend          Kind = "send"
	KindReceive       Kind = "receive"
	KindTransfer      Kind = "transfer"
	KindInternational Kind = "international"
	KindCryptoSend    Kind = "crypto_send"
	KindMining        Kind = "mining"
	KindTrading       Kind = "trading"
)

// Status is a transaction's settlement state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ErrNotFound is returned when no transaction exists for the identifier.
var ErrNotFound = errors.New("transaction not found")

// Transaction is an immutable record of one balance-affecting event. Once
// completed, neither the record nor its amount is ever mutated.
type Transaction struct {
	ID        string
	Reference string
	AccountID string
	Kind      Kind
	Status    Status

	Currency currency.Code
	Amount   float64

	// Conversion fields, set only for cross-currency transfers.
	FromCurrency    currency.Code
	ToCurrency      currency.Code
	ConvertedAmount float64
	ExchangeRate    float64

	// Hash is an opaque 64-hex token stamped on crypto sends. It stands in
	// for a chain transaction hash and is not cryptographically derived.
	Hash string

	Counterparty string
	Description  string

	EstimatedCompletion time.Time
	CreatedAt           time.Time
}

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewReference generates a unique transaction reference of the form
// TXN-<base36 millisecond timestamp>-<6 random alphanumerics>, uppercased.
func NewReference() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return "TXN-" + ts + "-" + randomToken(referenceAlphabet, 6)
}

// NewHash generates the opaque 64-hex-character pseudo transaction hash.
func NewHash() string {
	return randomToken("0123456789abcdef", 64)
}

// RandomToken draws n characters from the given alphabet using a
// cryptographically seeded source.
func RandomToken(alphabet string, n int) string {
	return randomToken(alphabet, n)
}

func randomToken(alphabet string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken; fall
		// back to a time-derived pattern rather than panic.
		seed := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(seed >> (uint(i%8) * 8))
		}
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
