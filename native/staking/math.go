package staking

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Amounts live in the 256-bit unsigned range of the principal token.

func checkRange(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ErrOverflow
	}
	return nil
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	if err := checkRange(a); err != nil {
		return nil, err
	}
	if err := checkRange(b); err != nil {
		return nil, err
	}
	x, _ := uint256.FromBig(zeroIfNil(a))
	y, _ := uint256.FromBig(zeroIfNil(b))
	sum, carry := new(uint256.Int).AddOverflow(x, y)
	if carry {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	if err := checkRange(a); err != nil {
		return nil, err
	}
	if err := checkRange(b); err != nil {
		return nil, err
	}
	x, _ := uint256.FromBig(zeroIfNil(a))
	y, _ := uint256.FromBig(zeroIfNil(b))
	diff, borrow := new(uint256.Int).SubOverflow(x, y)
	if borrow {
		return nil, ErrOverflow
	}
	return diff.ToBig(), nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
