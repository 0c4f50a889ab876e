package otc

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Settlement is the split of one fill's payment.
type Settlement struct {
	ExpectedPayment uint64
	FeeAmount       uint64
	PaymentToMaker  uint64
}

// mulDiv computes floor(a*b/d) with a 256-bit intermediate product.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrCalculationError
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(d))
	if !quotient.IsUint64() {
		return 0, ErrCalculationError
	}
	return quotient.Uint64(), nil
}

// ExpectedPayment returns the output owed for inputAmount at the offer's
// fixed rate. The rate always uses the original token amount so partial fills
// never drift.
func ExpectedPayment(inputAmount, expectedTotal, originalAmount uint64) (uint64, error) {
	return mulDiv(inputAmount, expectedTotal, originalAmount)
}

// FeeAmount returns floor(payment * feePercentage / 10000).
func FeeAmount(payment, feePercentage uint64) (uint64, error) {
	if feePercentage > FeeDenominator {
		return 0, ErrInvalidFeePercentage
	}
	return mulDiv(payment, feePercentage, FeeDenominator)
}

// Settle computes the full split for filling amount of the offer's input.
func Settle(offer *Offer, amount uint64) (Settlement, error) {
	if offer == nil {
		return Settlement{}, ErrOfferNotFound
	}
	payment, err := ExpectedPayment(amount, offer.ExpectedTotalAmount, offer.TokenAmount)
	if err != nil {
		return Settlement{}, err
	}
	fee, err := FeeAmount(payment, offer.FeePercentage)
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{
		ExpectedPayment: payment,
		FeeAmount:       fee,
		PaymentToMaker:  payment - fee,
	}, nil
}

// Price returns the offer's output-per-input rate for display. Settlement
// never uses it.
func Price(offer *Offer) decimal.Decimal {
	if offer == nil || offer.TokenAmount == 0 {
		return decimal.Zero
	}
	total := decimal.NewFromBigInt(new(big.Int).SetUint64(offer.ExpectedTotalAmount), 0)
	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(offer.TokenAmount), 0)
	return total.DivRound(amount, 18)
}
