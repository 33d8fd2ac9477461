package types

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// TemplateKind selects how envelopes are built for each key of a batch.
type TemplateKind string

func (k TemplateKind) String() string {
	return string(k)
}

const (
	TemplateTransfer      TemplateKind = "transfer"
	TemplateERC20Transfer TemplateKind = "erc20_transfer"
	TemplateSwap          TemplateKind = "swap"
	TemplateDeploy        TemplateKind = "deploy"
	TemplateCall          TemplateKind = "call"
)

var templateKinds = []TemplateKind{TemplateTransfer, TemplateERC20Transfer, TemplateSwap, TemplateDeploy, TemplateCall}

// BatchSpec describes one submission run.
type BatchSpec struct {
	Name        string `yaml:"name" toml:"name" json:"name"`
	Description string `yaml:"description" toml:"description" json:"description"`
	// ChainID is optional; when empty it is queried from the node.
	ChainID        string        `yaml:"chain_id" toml:"chain_id" json:"chain_id,omitempty"`
	KeysFile       string        `yaml:"keys_file" toml:"keys_file" json:"keys_file"`
	RPC            string        `yaml:"rpc" toml:"rpc" json:"rpc"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" toml:"request_timeout" json:"request_timeout,omitempty"`
	// TxsPerKey is how many envelopes are built per key, in row order. Defaults to 1.
	TxsPerKey int `yaml:"txs_per_key,omitempty" toml:"txs_per_key" json:"txs_per_key,omitempty"`
	// Limit caps how many keys are used. Zero means all of them.
	Limit       int          `yaml:"limit,omitempty" toml:"limit" json:"limit,omitempty"`
	Template    TxTemplate   `yaml:"template" toml:"template" json:"template"`
	Submit      SubmitConfig `yaml:"submit" toml:"submit" json:"submit"`
	MetricsAddr string       `yaml:"metrics_addr,omitempty" toml:"metrics_addr" json:"metrics_addr,omitempty"`
	ResultsFile string       `yaml:"results_file,omitempty" toml:"results_file" json:"results_file,omitempty"`
}

// TxTemplate is the transaction shape applied to every key of the batch.
// Amounts are decimal strings so they survive both YAML and TOML untouched.
type TxTemplate struct {
	Kind     TemplateKind `yaml:"kind" toml:"kind" json:"kind"`
	To       string       `yaml:"to,omitempty" toml:"to" json:"to,omitempty"`
	Value    string       `yaml:"value,omitempty" toml:"value" json:"value,omitempty"`
	GasLimit uint64       `yaml:"gas_limit,omitempty" toml:"gas_limit" json:"gas_limit,omitempty"`
	GasPrice string       `yaml:"gas_price,omitempty" toml:"gas_price" json:"gas_price,omitempty"`

	// Data is hex call data for call templates.
	Data string `yaml:"data,omitempty" toml:"data" json:"data,omitempty"`
	// Bytecode and ConstructorArgs are hex init code for deploy templates.
	Bytecode        string `yaml:"bytecode,omitempty" toml:"bytecode" json:"bytecode,omitempty"`
	ConstructorArgs string `yaml:"constructor_args,omitempty" toml:"constructor_args" json:"constructor_args,omitempty"`

	// Recipient receives ERC-20 transfers and swap output. Empty means the sender itself.
	Recipient string `yaml:"recipient,omitempty" toml:"recipient" json:"recipient,omitempty"`
	Amount    string `yaml:"amount,omitempty" toml:"amount" json:"amount,omitempty"`

	Path         []string `yaml:"path,omitempty" toml:"path" json:"path,omitempty"`
	AmountOutMin string   `yaml:"amount_out_min,omitempty" toml:"amount_out_min" json:"amount_out_min,omitempty"`
	Deadline     uint64   `yaml:"deadline,omitempty" toml:"deadline" json:"deadline,omitempty"`
}

// SubmitConfig mirrors the submitter options in file form.
type SubmitConfig struct {
	Concurrency      int           `yaml:"concurrency,omitempty" toml:"concurrency" json:"concurrency"`
	MaxAttempts      int           `yaml:"max_attempts,omitempty" toml:"max_attempts" json:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base,omitempty" toml:"backoff_base" json:"backoff_base"`
	BackoffCap       time.Duration `yaml:"backoff_cap,omitempty" toml:"backoff_cap" json:"backoff_cap"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout,omitempty" toml:"broadcast_timeout" json:"broadcast_timeout"`
	RejectThreshold  float64       `yaml:"reject_threshold,omitempty" toml:"reject_threshold" json:"reject_threshold"`
	AwaitReceipt     bool          `yaml:"await_receipt,omitempty" toml:"await_receipt" json:"await_receipt"`
	ReceiptTimeout   time.Duration `yaml:"receipt_timeout,omitempty" toml:"receipt_timeout" json:"receipt_timeout"`
}

const (
	DefaultConcurrency      = 8
	DefaultMaxAttempts      = 5
	DefaultBackoffBase      = 500 * time.Millisecond
	DefaultBackoffCap       = 8 * time.Second
	DefaultBroadcastTimeout = 10 * time.Second
	DefaultRejectThreshold  = 0.5
	DefaultReceiptTimeout   = 30 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
)

// ApplyDefaults fills every unset option with its default.
func (s *BatchSpec) ApplyDefaults() {
	if s.TxsPerKey == 0 {
		s.TxsPerKey = 1
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	s.Submit.ApplyDefaults()
}

func (c *SubmitConfig) ApplyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.BroadcastTimeout == 0 {
		c.BroadcastTimeout = DefaultBroadcastTimeout
	}
	if c.RejectThreshold == 0 {
		c.RejectThreshold = DefaultRejectThreshold
	}
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = DefaultReceiptTimeout
	}
}

// Validate validates the BatchSpec and returns an error if it's invalid
func (s *BatchSpec) Validate() error {
	if s.RPC == "" {
		return fmt.Errorf("rpc endpoint must be specified")
	}
	if s.KeysFile == "" {
		return fmt.Errorf("keys_file must be specified")
	}
	if s.ChainID != "" {
		if _, ok := new(big.Int).SetString(s.ChainID, 10); !ok {
			return fmt.Errorf("chain_id %q is not a decimal integer", s.ChainID)
		}
	}
	if s.TxsPerKey < 0 {
		return fmt.Errorf("txs_per_key must not be negative")
	}
	if s.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if err := s.Template.Validate(); err != nil {
		return fmt.Errorf("validating template: %w", err)
	}
	if err := s.Submit.Validate(); err != nil {
		return fmt.Errorf("validating submit options: %w", err)
	}
	return nil
}

func (t TxTemplate) Validate() error {
	if !t.Kind.valid() {
		return fmt.Errorf("unknown template kind %q", t.Kind)
	}
	for name, v := range map[string]string{"value": t.Value, "gas_price": t.GasPrice, "amount": t.Amount, "amount_out_min": t.AmountOutMin} {
		if v == "" {
			continue
		}
		if n, ok := new(big.Int).SetString(v, 10); !ok || n.Sign() < 0 {
			return fmt.Errorf("%s must be a non-negative decimal integer, got %q", name, v)
		}
	}

	switch t.Kind {
	case TemplateTransfer, TemplateCall:
		if t.To == "" {
			return fmt.Errorf("%s template requires a target address", t.Kind)
		}
	case TemplateERC20Transfer:
		if t.To == "" {
			return fmt.Errorf("erc20_transfer template requires the token address in 'to'")
		}
	case TemplateSwap:
		if t.To == "" {
			return fmt.Errorf("swap template requires the router address in 'to'")
		}
		if len(t.Path) < 2 {
			return fmt.Errorf("swap template requires a path of at least two tokens")
		}
	case TemplateDeploy:
		if t.To != "" {
			return fmt.Errorf("deploy template must not set a target address")
		}
		if t.Bytecode == "" {
			return fmt.Errorf("deploy template requires bytecode")
		}
	}
	return nil
}

func (c SubmitConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff_cap (%s) must not be below backoff_base (%s)", c.BackoffCap, c.BackoffBase)
	}
	if c.RejectThreshold < 0 || c.RejectThreshold > 1 {
		return fmt.Errorf("reject_threshold must be within [0, 1]")
	}
	return nil
}

func (k TemplateKind) valid() bool {
	for _, known := range templateKinds {
		if k == known {
			return true
		}
	}
	return false
}

// LoadSpec reads a batch spec from path, decoding TOML for a .toml extension and YAML otherwise.
// Defaults are applied before validation.
func LoadSpec(path string) (BatchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BatchSpec{}, fmt.Errorf("reading batch spec: %w", err)
	}

	var spec BatchSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &spec); err != nil {
			return BatchSpec{}, fmt.Errorf("decoding toml batch spec: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return BatchSpec{}, fmt.Errorf("decoding yaml batch spec: %w", err)
		}
	}

	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return BatchSpec{}, err
	}
	return spec, nil
}
