// Package keystore persists key pairs as a two column CSV file (PrivateKey, Address).
// Row order is significant: batches address senders by their row index.
package keystore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/skip-mev/salvo/chains/ethereum/wallet"
)

const (
	HeaderPrivateKey = "PrivateKey"
	HeaderAddress    = "Address"
)

// legacyHeaders are the column titles written by the older key generation scripts.
var legacyHeaders = [2]string{"Privkey", "PubKey"}

// ErrMissingHeader is returned when the first row is not a recognised header.
var ErrMissingHeader = errors.New("missing PrivateKey,Address header row")

// KeyRecord is one row of the store.
type KeyRecord struct {
	// Index is the zero based position of the row among data rows.
	Index int
	Key   wallet.KeyPair
}

// Address returns the address derived from the record's key.
func (r KeyRecord) Address() common.Address {
	return r.Key.Address()
}

// NewRecords numbers key pairs in order.
func NewRecords(keys []wallet.KeyPair) []KeyRecord {
	records := make([]KeyRecord, len(keys))
	for i, k := range keys {
		records[i] = KeyRecord{Index: i, Key: k}
	}
	return records
}

// PersistenceError reports a failed read or write of the backing file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("keystore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("keystore %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MalformedRecordError describes a single row that could not be parsed.
type MalformedRecordError struct {
	// Line is the 1 based line in the file, counting the header.
	Line   int
	Index  int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at line %d (index %d): %s", e.Line, e.Index, e.Reason)
}

// MalformedRowsError aggregates every malformed row found by a read.
// The read still returns all well formed records alongside it.
type MalformedRowsError struct {
	Rows []*MalformedRecordError
}

func (e *MalformedRowsError) Error() string {
	if len(e.Rows) == 1 {
		return e.Rows[0].Error()
	}
	return fmt.Sprintf("%d malformed records, first: %s", len(e.Rows), e.Rows[0].Error())
}

func (e *MalformedRowsError) Unwrap() []error {
	errs := make([]error, len(e.Rows))
	for i, r := range e.Rows {
		errs[i] = r
	}
	return errs
}

// Write encodes records in order, header first. Record indices are implied by row order.
func Write(w io.Writer, records []KeyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{HeaderPrivateKey, HeaderAddress}); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	for _, r := range records {
		if r.Key.IsZero() {
			return &PersistenceError{Op: "write", Err: fmt.Errorf("record %d has no key", r.Index)}
		}
		if err := cw.Write([]string{r.Key.PrivateKeyHex(), r.Address().Hex()}); err != nil {
			return &PersistenceError{Op: "write", Err: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// WriteFile atomically replaces path with the encoded records. The data is written to a
// temporary file in the same directory, synced, then renamed over path, so a failure at
// any point leaves the previous contents untouched.
func WriteFile(path string, records []KeyRecord) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	//nolint:gosec // G302: private keys are owner only
	if err = tmp.Chmod(0o600); err != nil {
		return &PersistenceError{Op: "chmod", Path: path, Err: err}
	}
	if err = Write(tmp, records); err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return err
	}
	if err = tmp.Sync(); err != nil {
		return &PersistenceError{Op: "sync", Path: path, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &PersistenceError{Op: "close", Path: path, Err: err}
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Read decodes records in file order. Malformed rows are skipped and reported together in a
// *MalformedRowsError returned with the remaining records. Any other error aborts the read.
func Read(r io.Reader) ([]KeyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &PersistenceError{Op: "read", Err: ErrMissingHeader}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}
	if !isHeader(header) {
		return nil, &PersistenceError{Op: "read", Err: ErrMissingHeader}
	}

	var (
		records   []KeyRecord
		malformed []*MalformedRecordError
	)
	for index := 0; ; index++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, &PersistenceError{Op: "read", Err: err}
			}
			malformed = append(malformed, &MalformedRecordError{Line: parseErr.StartLine, Index: index, Reason: parseErr.Err.Error()})
			continue
		}

		rec, reason := parseRow(index, row)
		if reason != "" {
			line, _ := cr.FieldPos(0)
			malformed = append(malformed, &MalformedRecordError{Line: line, Index: index, Reason: reason})
			continue
		}
		records = append(records, rec)
	}

	if len(malformed) > 0 {
		return records, &MalformedRowsError{Rows: malformed}
	}
	return records, nil
}

// ReadFile reads the records stored at path.
func ReadFile(path string) ([]KeyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	records, err := Read(f)
	var perr *PersistenceError
	if errors.As(err, &perr) {
		perr.Path = path
	}
	return records, err
}

func isHeader(row []string) bool {
	if len(row) != 2 {
		return false
	}
	first, second := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
	return (strings.EqualFold(first, HeaderPrivateKey) && strings.EqualFold(second, HeaderAddress)) ||
		(strings.EqualFold(first, legacyHeaders[0]) && strings.EqualFold(second, legacyHeaders[1]))
}

// parseRow returns a non empty reason when the row is malformed.
func parseRow(index int, row []string) (KeyRecord, string) {
	if len(row) != 2 {
		return KeyRecord{}, fmt.Sprintf("expected 2 fields, got %d", len(row))
	}
	key, err := wallet.KeyPairFromHex(row[0])
	if err != nil {
		return KeyRecord{}, err.Error()
	}
	addr := strings.TrimSpace(row[1])
	if !common.IsHexAddress(addr) {
		return KeyRecord{}, fmt.Sprintf("invalid address %q", addr)
	}
	if common.HexToAddress(addr) != key.Address() {
		return KeyRecord{}, fmt.Sprintf("address %s does not match private key (derives %s)", addr, key.Address().Hex())
	}
	return KeyRecord{Index: index, Key: key}, ""
}
