// Package transaction is the replay event model. Events are read from JSON
// with base-10 string amounts and parsed into typed transactions.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ftchann/uniswap-twamm/lib/twamm"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
)

const (
	TypeMint        = "Mint"
	TypeBurn        = "Burn"
	TypeSwap        = "Swap"
	TypeDonate      = "Donate"
	TypeCollect     = "Collect"
	TypeSubmitOrder = "SubmitOrder"
	TypeUpdateOrder = "UpdateOrder"
	TypeExecute     = "Execute"
)

// cancelKeyword may replace amountDelta to cancel an order outright.
const cancelKeyword = "cancel"

var (
	ErrUnknownType   = errors.New("transaction: unknown type")
	ErrInvalidAmount = errors.New("transaction: invalid amount")
	ErrInvalidOwner  = errors.New("transaction: invalid owner address")
)

var (
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
)

type TransactionInput struct {
	Type              string `json:"type"`
	ID                string `json:"id,omitempty"`
	Timestamp         uint64 `json:"timestamp"`
	Owner             string `json:"owner,omitempty"`
	Amount            string `json:"amount,omitempty"`
	Amount0           string `json:"amount0,omitempty"`
	Amount1           string `json:"amount1,omitempty"`
	TickLower         int    `json:"tickLower,omitempty"`
	TickUpper         int    `json:"tickUpper,omitempty"`
	ZeroForOne        bool   `json:"zeroForOne,omitempty"`
	Expiration        uint64 `json:"expiration,omitempty"`
	SqrtPriceLimitX96 string `json:"sqrtPriceLimitX96,omitempty"`
	AmountDelta       string `json:"amountDelta,omitempty"`
}

// Transaction is a parsed event. Amount, Amount0, Amount1 and AmountDelta are
// two's complement signed values; a nil amount was absent from the input.
type Transaction struct {
	Type              string
	ID                string
	Timestamp         uint64
	Owner             common.Address
	Amount            *ui.Int
	Amount0           *ui.Int
	Amount1           *ui.Int
	TickLower         int
	TickUpper         int
	ZeroForOne        bool
	Expiration        uint64
	SqrtPriceLimitX96 *ui.Int
	AmountDelta       *ui.Int
}

// OrderKey returns the long term order the transaction refers to.
func (t Transaction) OrderKey() twamm.OrderKey {
	return twamm.OrderKey{Owner: t.Owner, Expiration: t.Expiration, ZeroForOne: t.ZeroForOne}
}

// Parse validates in and converts its string fields.
func Parse(in TransactionInput) (Transaction, error) {
	switch in.Type {
	case TypeMint, TypeBurn, TypeSwap, TypeDonate, TypeCollect, TypeSubmitOrder, TypeUpdateOrder, TypeExecute:
	default:
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}

	t := Transaction{
		Type:       in.Type,
		ID:         in.ID,
		Timestamp:  in.Timestamp,
		TickLower:  in.TickLower,
		TickUpper:  in.TickUpper,
		ZeroForOne: in.ZeroForOne,
		Expiration: in.Expiration,
	}
	if in.Owner != "" {
		if !common.IsHexAddress(in.Owner) {
			return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidOwner, in.Owner)
		}
		t.Owner = common.HexToAddress(in.Owner)
	}

	var err error
	if t.Amount, err = ParseSigned(in.Amount); err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}
	if t.Amount0, err = ParseSigned(in.Amount0); err != nil {
		return Transaction{}, fmt.Errorf("amount0: %w", err)
	}
	if t.Amount1, err = ParseSigned(in.Amount1); err != nil {
		return Transaction{}, fmt.Errorf("amount1: %w", err)
	}
	if t.SqrtPriceLimitX96, err = ParseSigned(in.SqrtPriceLimitX96); err != nil {
		return Transaction{}, fmt.Errorf("sqrtPriceLimitX96: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(in.AmountDelta), cancelKeyword) {
		t.AmountDelta = twamm.CancelAllDelta.Clone()
	} else if t.AmountDelta, err = ParseSigned(in.AmountDelta); err != nil {
		return Transaction{}, fmt.Errorf("amountDelta: %w", err)
	}
	return t, nil
}

// ParseSigned reads a base-10 integer into two's complement. An empty string
// yields nil.
func ParseSigned(s string) (*ui.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Cmp(minInt256) < 0 || b.Cmp(maxInt256) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	x, _ := ui.FromBig(new(big.Int).Abs(b))
	if b.Sign() < 0 {
		x.Neg(x)
	}
	return x, nil
}

// FormatSigned renders a two's complement value in base 10.
func FormatSigned(x *ui.Int) string {
	if x == nil {
		return ""
	}
	if x.Sign() < 0 {
		return "-" + new(ui.Int).Neg(x).Dec()
	}
	return x.Dec()
}

// Load decodes a JSON array of events.
func Load(r io.Reader) ([]Transaction, error) {
	var inputs []TransactionInput
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	transactions := make([]Transaction, 0, len(inputs))
	for i, in := range inputs {
		t, err := Parse(in)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		transactions = append(transactions, t)
	}
	return transactions, nil
}

func ReadFile(path string) ([]Transaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer file.Close()
	return Load(file)
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	in := TransactionInput{
		Type:              t.Type,
		ID:                t.ID,
		Timestamp:         t.Timestamp,
		Amount:            FormatSigned(t.Amount),
		Amount0:           FormatSigned(t.Amount0),
		Amount1:           FormatSigned(t.Amount1),
		SqrtPriceLimitX96: FormatSigned(t.SqrtPriceLimitX96),
		AmountDelta:       FormatSigned(t.AmountDelta),
	}
	switch t.Type {
	case TypeMint, TypeBurn, TypeCollect:
		in.Owner = t.Owner.Hex()
		in.TickLower = t.TickLower
		in.TickUpper = t.TickUpper
	case TypeSwap:
		in.ZeroForOne = t.ZeroForOne
	case TypeSubmitOrder, TypeUpdateOrder:
		in.Owner = t.Owner.Hex()
		in.ZeroForOne = t.ZeroForOne
		in.Expiration = t.Expiration
	}
	return json.Marshal(&in)
}
