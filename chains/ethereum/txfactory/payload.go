package txfactory

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	ethtypes "github.com/skip-mev/salvo/chains/ethereum/types"
	"github.com/skip-mev/salvo/chains/ethereum/wallet"
	batchtypes "github.com/skip-mev/salvo/chains/types"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const routerABI = `[
	{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var (
	ERC20ABI  = mustParseABI(erc20ABI)
	RouterABI = mustParseABI(routerABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parsing abi: %v", err))
	}
	return parsed
}

// Call is the raw material for one envelope, before a nonce is assigned.
type Call struct {
	Target   string
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Template turns a batch template into per item calls. It is parsed once and is safe for concurrent use.
type Template struct {
	kind     batchtypes.TemplateKind
	to       string
	value    *big.Int
	gasLimit uint64
	gasPrice *big.Int

	data         []byte
	recipient    *common.Address
	amount       *big.Int
	amountOutMin *big.Int
	path         []common.Address
	deadline     *big.Int
}

// NewTemplate parses and checks every address, amount and hex field of t.
func NewTemplate(t batchtypes.TxTemplate) (*Template, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	tpl := &Template{
		kind:     t.Kind,
		to:       strings.TrimSpace(t.To),
		gasLimit: t.GasLimit,
	}
	var err error
	if tpl.value, err = parseAmount(t.Value, 0); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if t.GasPrice != "" {
		if tpl.gasPrice, err = parseAmount(t.GasPrice, 0); err != nil {
			return nil, fmt.Errorf("gas_price: %w", err)
		}
	}
	if tpl.to != "" && !common.IsHexAddress(tpl.to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, tpl.to)
	}
	if t.Recipient != "" {
		if !common.IsHexAddress(t.Recipient) {
			return nil, fmt.Errorf("recipient: %w: %q", ErrInvalidTarget, t.Recipient)
		}
		r := common.HexToAddress(t.Recipient)
		tpl.recipient = &r
	}

	switch t.Kind {
	case batchtypes.TemplateCall:
		if tpl.data, err = decodeHex(t.Data); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
	case batchtypes.TemplateDeploy:
		code, err := decodeHex(t.Bytecode)
		if err != nil {
			return nil, fmt.Errorf("bytecode: %w", err)
		}
		args, err := decodeHex(t.ConstructorArgs)
		if err != nil {
			return nil, fmt.Errorf("constructor_args: %w", err)
		}
		tpl.data = append(code, args...)
	case batchtypes.TemplateERC20Transfer:
		if tpl.amount, err = parseAmount(t.Amount, 1); err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
	case batchtypes.TemplateSwap:
		if tpl.amount, err = parseAmount(t.Amount, 1); err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		if tpl.amountOutMin, err = parseAmount(t.AmountOutMin, 0); err != nil {
			return nil, fmt.Errorf("amount_out_min: %w", err)
		}
		for _, hop := range t.Path {
			if !common.IsHexAddress(hop) {
				return nil, fmt.Errorf("path: %w: %q", ErrInvalidTarget, hop)
			}
			tpl.path = append(tpl.path, common.HexToAddress(hop))
		}
		tpl.deadline = new(big.Int).SetUint64(t.Deadline)
		if t.Deadline == 0 {
			tpl.deadline = new(big.Int).SetUint64(math.MaxUint64)
		}
	}
	return tpl, nil
}

// Kind returns the template kind.
func (t *Template) Kind() batchtypes.TemplateKind {
	return t.kind
}

// GasPrice returns the configured static gas price, or nil when the node should suggest one.
func (t *Template) GasPrice() *big.Int {
	return t.gasPrice
}

// Call renders the call for the item at index, sent by sender.
// Swaps grow amountIn with the index and alternate the path direction so consecutive
// items trade back and forth.
func (t *Template) Call(index int, sender common.Address) (Call, error) {
	call := Call{
		Target:   t.to,
		Value:    new(big.Int).Set(t.value),
		GasLimit: t.gasLimit,
	}

	recipient := sender
	if t.recipient != nil {
		recipient = *t.recipient
	}

	switch t.kind {
	case batchtypes.TemplateTransfer:
	case batchtypes.TemplateCall, batchtypes.TemplateDeploy:
		call.Data = common.CopyBytes(t.data)
	case batchtypes.TemplateERC20Transfer:
		data, err := ERC20ABI.Pack("transfer", recipient, new(big.Int).Set(t.amount))
		if err != nil {
			return Call{}, fmt.Errorf("packing erc20 transfer: %w", err)
		}
		call.Data = data
	case batchtypes.TemplateSwap:
		amountIn := new(big.Int).Add(t.amount, big.NewInt(int64(index)))
		path := t.path
		if index%2 == 1 {
			path = reversed(t.path)
		}
		data, err := RouterABI.Pack("swapExactTokensForTokens", amountIn, new(big.Int).Set(t.amountOutMin), path, recipient, new(big.Int).Set(t.deadline))
		if err != nil {
			return Call{}, fmt.Errorf("packing swap: %w", err)
		}
		call.Data = data
	default:
		return Call{}, fmt.Errorf("unsupported template kind: %q", t.kind)
	}
	return call, nil
}

// BuildTemplate renders the template for index and assigns the sender's next nonce.
func (b *Builder) BuildTemplate(ctx context.Context, tpl *Template, index int, sender wallet.KeyPair) (ethtypes.Envelope, error) {
	call, err := tpl.Call(index, sender.Address())
	if err != nil {
		return ethtypes.Envelope{}, err
	}
	return b.Build(ctx, sender, call.Target, call.Data, call.Value, call.GasLimit)
}

func parseAmount(s string, fallback int64) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(fallback), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func reversed(path []common.Address) []common.Address {
	out := make([]common.Address, len(path))
	for i, a := range path {
		out[len(path)-1-i] = a
	}
	return out
}
