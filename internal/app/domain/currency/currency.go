package currency

// Code identifies one of the fixed set of supported currencies.
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
	GBP Code = "GBP"
	CNY Code = "CNY"
	NGN Code = "NGN"
	BTC Code = "BTC"
	TRX Code = "TRX"
	TON Code = "TON"
	ETH Code = "ETH"
)

// Fiat lists the supported fiat currencies in canonical order.
func Fiat() []Code {
	return []Code{USD, EUR, GBP, CNY, NGN}
}

// Crypto lists the supported crypto-labelled currencies in canonical order.
func Crypto() []Code {
	return []Code{BTC, TRX, TON, ETH}
}

// All lists every supported currency, fiat first.
func All() []Code {
	return append(Fiat(), Crypto()...)
}

// Valid reports whether code belongs to the supported set.
func Valid(code Code) bool {
	for _, c := range All() {
		if c == code {
			return true
		}
	}
	return false
}

// IsCrypto reports whether code is one of the crypto-labelled currencies.
func IsCrypto(code Code) bool {
	switch code {
	case BTC, TRX, TON, ETH:
		return true
	}
	return false
}

// addressPrefixes holds the per-currency prefix used when synthesising
// pseudo-addresses. These are decorative identifiers, not real wallets.
var addressPrefixes = map[Code]string{
	BTC: "bc1",
	ETH: "0x",
	TON: "EQ",
	TRX: "T",
}

// AddressPrefix returns the pseudo-address prefix for a crypto currency.
func AddressPrefix(code Code) string {
	return addressPrefixes[code]
}
