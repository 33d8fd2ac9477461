package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skip-mev/salvo/chains/ethereum/keystore"
	batchtypes "github.com/skip-mev/salvo/chains/types"
	"github.com/skip-mev/salvo/config"
)

func TestKeygenThenAddresses(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "keys.csv")

	require.NoError(t, runKeygen(logger, KeygenConfig{Count: 4, Out: path}))

	records, err := keystore.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 4)

	var list bytes.Buffer
	require.NoError(t, runAddresses(logger, &list, AddressesConfig{Keys: path, List: true}))
	lines := strings.Split(strings.TrimSpace(list.String()), "\n")
	require.Len(t, lines, 4)
	for i, r := range records {
		require.Equal(t, r.Address().Hex(), lines[i])
	}

	var alloc bytes.Buffer
	require.NoError(t, runAddresses(logger, &alloc, AddressesConfig{Keys: path, Balance: "42"}))
	var decoded map[string]map[string]string
	require.NoError(t, json.Unmarshal(alloc.Bytes(), &decoded))
	require.Len(t, decoded, 4)
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "keys.csv")

	require.NoError(t, runKeygen(logger, KeygenConfig{Count: 1, Out: path}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = runKeygen(logger, KeygenConfig{Count: 2, Out: path})
	require.ErrorContains(t, err, "already exists")
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)

	require.NoError(t, runKeygen(logger, KeygenConfig{Count: 2, Out: path, Force: true}))
	records, err := keystore.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestKeygenNegativeCount(t *testing.T) {
	err := runKeygen(zaptest.NewLogger(t), KeygenConfig{Count: -1, Out: filepath.Join(t.TempDir(), "k.csv")})
	require.Error(t, err)
}

func TestAddressesInvalidBalance(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "keys.csv")
	require.NoError(t, runKeygen(logger, KeygenConfig{Count: 1, Out: path}))

	err := runAddresses(logger, &bytes.Buffer{}, AddressesConfig{Keys: path, Balance: "lots"})
	require.ErrorContains(t, err, "invalid balance")
}

func TestAddressesMissingKeyFile(t *testing.T) {
	err := runAddresses(zaptest.NewLogger(t), &bytes.Buffer{}, AddressesConfig{Keys: filepath.Join(t.TempDir(), "none.csv"), List: true})
	var perr *keystore.PersistenceError
	require.ErrorAs(t, err, &perr)
}

func TestSubmitSetupFailureSavesError(t *testing.T) {
	dir := t.TempDir()
	ctx := config.WithEnv(context.Background(), config.Env{ResultsDir: dir})

	code, err := runSubmit(ctx, zaptest.NewLogger(t), config.Config{ConfigPath: filepath.Join(dir, "missing.yaml")})
	require.Equal(t, ExitSetupFailure, code)
	require.ErrorContains(t, err, "failed to load batch spec")

	data, err := os.ReadFile(filepath.Join(dir, "batch-setup-error.json"))
	require.NoError(t, err)
	var result batchtypes.BatchResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Contains(t, result.Error, "failed to load batch spec")
}

func TestSubmitRequiresConfig(t *testing.T) {
	ctx := config.WithEnv(context.Background(), config.Env{ResultsDir: t.TempDir()})
	code, err := runSubmit(ctx, zaptest.NewLogger(t), config.Config{})
	require.Equal(t, ExitSetupFailure, code)
	require.Error(t, err)
}

func TestExecuteExitCodes(t *testing.T) {
	t.Chdir(t.TempDir())

	require.Equal(t, ExitSetupFailure, execute(context.Background(), []string{"keygen"}))
	require.Equal(t, ExitOK, execute(context.Background(), []string{"keygen", "-n", "2", "-o", "keys.csv"}))
	require.Equal(t, ExitSetupFailure, execute(context.Background(), []string{"keygen", "-n", "2", "-o", "keys.csv"}))
	require.Equal(t, ExitOK, execute(context.Background(), []string{"addresses", "--list"}))
}

func TestExitError(t *testing.T) {
	require.Equal(t, "exit status 2", (&exitError{code: ExitRejected}).Error())
	ee := &exitError{code: ExitCancelled, err: context.Canceled}
	require.ErrorIs(t, ee, context.Canceled)
	require.Equal(t, context.Canceled.Error(), ee.Error())
}
