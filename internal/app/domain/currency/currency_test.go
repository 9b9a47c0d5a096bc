package currency

import "testing"

func TestSupportedSet(t *testing.T) {
	if len(All()) != 9 {
		t.Fatalf("supported currencies = %d, want 9", len(All()))
	}
	if len(Fiat()) != 5 || len(Crypto()) != 4 {
		t.Fatalf("fiat = %d crypto = %d, want 5 and 4", len(Fiat()), len(Crypto()))
	}
	for _, code := range All() {
		if !Valid(code) {
			t.Fatalf("%s not reported valid", code)
		}
	}
	if Valid("XAU") {
		t.Fatal("unknown code reported valid")
	}
}

func TestFiatPairsAreComplete(t *testing.T) {
	// Every ordered fiat pair must carry a real table rate; the unit
	// fallback is reserved for unlisted crypto cross pairs.
	for _, from := range Fiat() {
		for _, to := range Fiat() {
			if from == to {
				continue
			}
			if _, ok := Rate(from, to); !ok {
				t.Fatalf("missing rate for %s-%s", from, to)
			}
		}
	}
}

func TestCryptoUSDPairs(t *testing.T) {
	for _, code := range Crypto() {
		if _, ok := Rate(code, USD); !ok {
			t.Fatalf("missing rate for %s-USD", code)
		}
		if _, ok := Rate(USD, code); !ok {
			t.Fatalf("missing rate for USD-%s", code)
		}
	}
}

func TestRateFallsBackToUnit(t *testing.T) {
	rate, ok := Rate(BTC, ETH)
	if ok {
		t.Fatal("BTC-ETH unexpectedly listed")
	}
	if rate != 1 {
		t.Fatalf("fallback rate = %v, want 1", rate)
	}

	converted, rate := Convert(3, BTC, ETH)
	if converted != 3 || rate != 1 {
		t.Fatalf("convert = %v at %v, want unchanged amount at unit rate", converted, rate)
	}
}

func TestConvertAppliesTableRate(t *testing.T) {
	converted, rate := Convert(100, USD, EUR)
	if rate != 0.92 || converted != 92 {
		t.Fatalf("convert = %v at %v, want 92 at 0.92", converted, rate)
	}
}

func TestAddressPrefix(t *testing.T) {
	cases := map[Code]string{BTC: "bc1", ETH: "0x", TON: "EQ", TRX: "T"}
	for code, want := range cases {
		if got := AddressPrefix(code); got != want {
			t.Fatalf("prefix for %s = %q, want %q", code, got, want)
		}
	}
	if AddressPrefix(USD) != "" {
		t.Fatal("fiat currency has an address prefix")
	}
}
