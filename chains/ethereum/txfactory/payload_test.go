package txfactory

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	ethtypes "github.com/skip-mev/salvo/chains/ethereum/types"
	batchtypes "github.com/skip-mev/salvo/chains/types"
)

var (
	tokenA = common.HexToAddress("0x4FF947e19ab44afA198A3DdEaaeD817b4a8417FF")
	tokenB = common.HexToAddress("0xdDa66C80C54c37d65B960AC8dFd2F0fDD2449B38")
	router = common.HexToAddress("0x5bc532C8910EA2934a92A22d5dF3c868C91C9631")
)

func TestTemplateERC20Transfer(t *testing.T) {
	tpl, err := NewTemplate(batchtypes.TxTemplate{
		Kind:   batchtypes.TemplateERC20Transfer,
		To:     router.Hex(),
		Amount: "8",
	})
	require.NoError(t, err)

	sender := newKeys(t, 1)[0].Address()
	call, err := tpl.Call(0, sender)
	require.NoError(t, err)
	require.Equal(t, router.Hex(), call.Target)

	method := ERC20ABI.Methods["transfer"]
	require.Equal(t, method.ID, call.Data[:4])
	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)
	require.Equal(t, sender, args[0].(common.Address))
	require.Equal(t, int64(8), args[1].(*big.Int).Int64())
}

func TestTemplateSwapAlternatesPath(t *testing.T) {
	recipient := common.HexToAddress("0x65e154ef9a2967e922936415bb0e2204be87b64c")
	tpl, err := NewTemplate(batchtypes.TxTemplate{
		Kind:      batchtypes.TemplateSwap,
		To:        router.Hex(),
		Path:      []string{tokenA.Hex(), tokenB.Hex()},
		Recipient: recipient.Hex(),
		Deadline:  1234567891234567,
	})
	require.NoError(t, err)

	method := RouterABI.Methods["swapExactTokensForTokens"]
	for index := range 4 {
		call, err := tpl.Call(index, common.Address{})
		require.NoError(t, err)
		require.Equal(t, ethtypes.ContractCallGasLimit, mustBuild(t, tpl, index).GasLimit)

		args, err := method.Inputs.Unpack(call.Data[4:])
		require.NoError(t, err)
		require.Equal(t, int64(index+1), args[0].(*big.Int).Int64())
		require.Zero(t, args[1].(*big.Int).Sign())

		path := args[2].([]common.Address)
		if index%2 == 0 {
			require.Equal(t, []common.Address{tokenA, tokenB}, path)
		} else {
			require.Equal(t, []common.Address{tokenB, tokenA}, path)
		}
		require.Equal(t, recipient, args[3].(common.Address))
		require.Equal(t, uint64(1234567891234567), args[4].(*big.Int).Uint64())
	}
}

func TestTemplateDeployAndCall(t *testing.T) {
	deploy, err := NewTemplate(batchtypes.TxTemplate{
		Kind:            batchtypes.TemplateDeploy,
		Bytecode:        "0x6080",
		ConstructorArgs: "ff",
	})
	require.NoError(t, err)
	call, err := deploy.Call(0, common.Address{})
	require.NoError(t, err)
	require.Empty(t, call.Target)
	require.Equal(t, []byte{0x60, 0x80, 0xff}, call.Data)

	raw, err := NewTemplate(batchtypes.TxTemplate{
		Kind:     batchtypes.TemplateCall,
		To:       router.Hex(),
		Data:     "0xa9059cbb",
		GasLimit: 100_000,
		Value:    "5",
	})
	require.NoError(t, err)
	call, err = raw.Call(3, common.Address{})
	require.NoError(t, err)
	require.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, call.Data)
	require.Equal(t, uint64(100_000), call.GasLimit)
	require.Equal(t, int64(5), call.Value.Int64())
}

func TestNewTemplateRejectsBadFields(t *testing.T) {
	tests := []struct {
		name string
		tpl  batchtypes.TxTemplate
	}{
		{name: "bad target", tpl: batchtypes.TxTemplate{Kind: batchtypes.TemplateTransfer, To: "0xnope"}},
		{name: "bad call data", tpl: batchtypes.TxTemplate{Kind: batchtypes.TemplateCall, To: router.Hex(), Data: "0xabc"}},
		{name: "bad bytecode", tpl: batchtypes.TxTemplate{Kind: batchtypes.TemplateDeploy, Bytecode: "zz"}},
		{name: "bad path hop", tpl: batchtypes.TxTemplate{Kind: batchtypes.TemplateSwap, To: router.Hex(), Path: []string{tokenA.Hex(), "0x01"}}},
		{name: "bad recipient", tpl: batchtypes.TxTemplate{Kind: batchtypes.TemplateERC20Transfer, To: router.Hex(), Recipient: "me"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplate(tt.tpl)
			require.Error(t, err)
		})
	}
}

func mustBuild(t *testing.T, tpl *Template, index int) ethtypes.Envelope {
	t.Helper()
	b := NewBuilder(zaptest.NewLogger(t), &fakeClient{}, big.NewInt(1))
	env, err := b.BuildTemplate(context.Background(), tpl, index, newKeys(t, 1)[0])
	require.NoError(t, err)
	return env
}
