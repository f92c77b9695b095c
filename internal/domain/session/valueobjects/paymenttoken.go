package valueobjects

import "fmt"

// PaymentToken identifies the settlement asset for a session. All amounts in
// the coordinator are normalized to 6-decimal smallest units regardless of
// the token's on-chain decimals.
type PaymentToken string

const (
	// TokenNative is the chain's native currency.
	TokenNative PaymentToken = "native"
	// TokenUSDS is the supported stable token.
	TokenUSDS PaymentToken = "usds"
)

// UnitDecimals is the number of decimal places in coordinator amounts.
const UnitDecimals = 6

// UnitScale converts whole token amounts to smallest units (1.00 = 1_000_000).
const UnitScale = 1_000_000

// NewPaymentToken validates and returns a payment token.
func NewPaymentToken(s string) (PaymentToken, error) {
	t := PaymentToken(s)
	switch t {
	case TokenNative, TokenUSDS:
		return t, nil
	}
	return "", fmt.Errorf("unsupported payment token: %s", s)
}

func (t PaymentToken) String() string {
	return string(t)
}

// IsValid reports whether the token is supported.
func (t PaymentToken) IsValid() bool {
	return t == TokenNative || t == TokenUSDS
}
