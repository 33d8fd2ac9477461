package keystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/skip-mev/salvo/chains/ethereum/wallet"
)

func generateRecords(t *testing.T, n int) []KeyRecord {
	t.Helper()
	keys, err := wallet.NewGenerator(nil).GenerateAll(n)
	require.NoError(t, err)
	return NewRecords(keys)
}

func requireSameRecords(t *testing.T, want, got []KeyRecord) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Index, got[i].Index)
		require.Equal(t, want[i].Key.PrivateKeyHex(), got[i].Key.PrivateKeyHex())
		require.Equal(t, want[i].Address(), got[i].Address())
	}
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 3, 50} {
		records := generateRecords(t, n)

		var buf bytes.Buffer
		require.NoError(t, Write(&buf, records))

		got, err := Read(&buf)
		require.NoError(t, err)
		requireSameRecords(t, records, got)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.csv")
	records := generateRecords(t, 3)

	require.NoError(t, WriteFile(path, records))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := ReadFile(path)
	require.NoError(t, err)
	requireSameRecords(t, records, got)

	for _, r := range got {
		require.Equal(t, crypto.PubkeyToAddress(r.Key.PrivateKey().PublicKey), r.Address())
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileFailureKeepsPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.csv")
	original := generateRecords(t, 2)
	require.NoError(t, WriteFile(path, original))

	bad := append(generateRecords(t, 1), KeyRecord{Index: 1})
	err := WriteFile(path, bad)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, path, perr.Path)

	got, err := ReadFile(path)
	require.NoError(t, err)
	requireSameRecords(t, original, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileMissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "nope", "keys.csv"), generateRecords(t, 1))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "create", perr.Op)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadQuotedAndLegacyHeader(t *testing.T) {
	records := generateRecords(t, 2)
	var b strings.Builder
	b.WriteString("Privkey,PubKey\n")
	for _, r := range records {
		b.WriteString(`"` + r.Key.PrivateKeyHex() + `", "` + strings.ToLower(r.Address().Hex()) + "\"\n")
	}

	got, err := Read(strings.NewReader(b.String()))
	require.NoError(t, err)
	requireSameRecords(t, records, got)
}

func TestReadMissingHeader(t *testing.T) {
	records := generateRecords(t, 1)
	input := records[0].Key.PrivateKeyHex() + "," + records[0].Address().Hex() + "\n"

	_, err := Read(strings.NewReader(input))
	require.ErrorIs(t, err, ErrMissingHeader)

	_, err = Read(strings.NewReader(""))
	require.ErrorIs(t, err, ErrMissingHeader)
}

func TestReadMalformedRows(t *testing.T) {
	records := generateRecords(t, 3)
	other := generateRecords(t, 1)[0]

	lines := []string{
		"PrivateKey,Address",
		records[0].Key.PrivateKeyHex() + "," + records[0].Address().Hex(),
		"0xnothex," + records[1].Address().Hex(),                             // invalid hex
		records[1].Key.PrivateKeyHex() + "," + other.Address().Hex(),         // desynchronised address
		records[2].Key.PrivateKeyHex(),                                       // wrong field count
		records[2].Key.PrivateKeyHex() + "," + records[2].Address().Hex(),
	}

	got, err := Read(strings.NewReader(strings.Join(lines, "\n") + "\n"))

	var rowsErr *MalformedRowsError
	require.ErrorAs(t, err, &rowsErr)
	require.Len(t, rowsErr.Rows, 3)
	require.Equal(t, []int{1, 2, 3}, []int{rowsErr.Rows[0].Index, rowsErr.Rows[1].Index, rowsErr.Rows[2].Index})
	require.Equal(t, 3, rowsErr.Rows[0].Line)

	var rowErr *MalformedRecordError
	require.ErrorAs(t, err, &rowErr)

	// the well formed rows are still returned, keeping their original positions
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].Index)
	require.Equal(t, records[0].Address(), got[0].Address())
	require.Equal(t, 4, got[1].Index)
	require.Equal(t, records[2].Address(), got[1].Address())
}

func TestGenesisAlloc(t *testing.T) {
	records := generateRecords(t, 2)
	balance, _ := new(big.Int).SetString("10000000000000000000000", 10)

	out, err := GenesisAlloc(records, balance)
	require.NoError(t, err)

	var decoded map[string]map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	for _, r := range records {
		require.Equal(t, "10000000000000000000000", decoded[r.Address().Hex()]["balance"])
	}

	_, err = GenesisAlloc(records, big.NewInt(-1))
	require.Error(t, err)
}
