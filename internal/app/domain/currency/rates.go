package currency

// conversionRates is the static pairwise exchange-rate table, keyed by
// ordered "FROM-TO" pairs. Crypto rates are quoted against USD and chained
// through it for the remaining fiat pairs.
var conversionRates = map[string]float64{
	"USD-EUR": 0.92,
	"EUR-USD": 1.09,
	"USD-GBP": 0.79,
	"GBP-USD": 1.27,
	"USD-CNY": 7.24,
	"CNY-USD": 0.14,
	"USD-NGN": 1530.0,
	"NGN-USD": 0.00065,
	"EUR-GBP": 0.86,
	"GBP-EUR": 1.16,
	"EUR-CNY": 7.87,
	"CNY-EUR": 0.13,
	"EUR-NGN": 1665.0,
	"NGN-EUR": 0.0006,
	"GBP-CNY": 9.18,
	"CNY-GBP": 0.11,
	"GBP-NGN": 1940.0,
	"NGN-GBP": 0.00052,
	"CNY-NGN": 211.0,
	"NGN-CNY": 0.0047,

	"BTC-USD": 64000.0,
	"USD-BTC": 0.0000156,
	"ETH-USD": 3400.0,
	"USD-ETH": 0.000294,
	"TON-USD": 7.2,
	"USD-TON": 0.139,
	"TRX-USD": 0.12,
	"USD-TRX": 8.33,
}

// Rate returns the exchange rate for converting from one currency to
// another. Unlisted pairs fall back to 1; ok reports whether the pair was
// actually listed so callers can tell the fallback apart from a real rate.
func Rate(from, to Code) (rate float64, ok bool) {
	if rate, ok = conversionRates[string(from)+"-"+string(to)]; ok {
		return rate, true
	}
	return 1, false
}

// Convert applies the pairwise rate to amount, returning the converted
// amount and the rate used.
func Convert(amount float64, from, to Code) (converted, rate float64) {
	rate, _ = Rate(from, to)
	return amount * rate, rate
}
