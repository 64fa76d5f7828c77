package outside

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/better-wallet/controller/internal/validation"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// Method is the custom JSON-RPC method carrying a signed execution.
const Method = "cartridge_addExecuteOutsideTransaction"

// Params is the wire form of Method's params.
type Params struct {
	Address          string          `json:"address" validate:"required,felt"`
	OutsideExecution ExecutionParams `json:"outside_execution"`
	Signature        []string        `json:"signature" validate:"required,dive,felt"`
}

// ExecutionParams is the wire form of an Execution.
type ExecutionParams struct {
	Caller        string       `json:"caller" validate:"required,felt"`
	Nonce         string       `json:"nonce" validate:"required,felt"`
	ExecuteAfter  uint64       `json:"execute_after"`
	ExecuteBefore uint64       `json:"execute_before"`
	Calls         []CallParams `json:"calls" validate:"required,dive"`
}

// CallParams is the wire form of a call. Entrypoint is either a function
// name or a 0x-prefixed selector.
type CallParams struct {
	ContractAddress string   `json:"contract_address" validate:"required,felt"`
	Entrypoint      string   `json:"entrypoint" validate:"required,entrypoint"`
	Calldata        []string `json:"calldata" validate:"dive,felt"`
}

// ParamsError reports malformed params.
type ParamsError struct {
	Field string
	Err   error
}

func (e *ParamsError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid params: %v", e.Err)
	}
	return fmt.Sprintf("invalid params: %s: %v", e.Field, e.Err)
}

func (e *ParamsError) Unwrap() error {
	return e.Err
}

// Request is a decoded Method call.
type Request struct {
	Address felt.Felt
	Signed  Signed
}

// EncodeParams renders a signed execution for account as wire params.
// Entrypoints are written as hex selectors.
func EncodeParams(account felt.Felt, signed Signed) Params {
	exec := signed.Execution
	calls := make([]CallParams, len(exec.Calls))
	for i, c := range exec.Calls {
		calls[i] = CallParams{
			ContractAddress: c.To.String(),
			Entrypoint:      c.Selector.String(),
			Calldata:        feltStrings(c.Calldata),
		}
	}

	return Params{
		Address: account.String(),
		OutsideExecution: ExecutionParams{
			Caller:        exec.Caller.String(),
			Nonce:         exec.Nonce.String(),
			ExecuteAfter:  exec.ExecuteAfter,
			ExecuteBefore: exec.ExecuteBefore,
			Calls:         calls,
		},
		Signature: feltStrings(signed.Signature),
	}
}

// ParseParams decodes raw JSON params and resolves them into a Request.
func ParseParams(raw json.RawMessage) (*Request, error) {
	if len(raw) == 0 {
		return nil, &ParamsError{Err: fmt.Errorf("missing params")}
	}

	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ParamsError{Err: err}
	}
	return DecodeParams(p)
}

// DecodeParams validates wire params and resolves entrypoint names to
// selectors. Hex entrypoints are taken as selectors.
func DecodeParams(p Params) (*Request, error) {
	if err := validation.Struct(p); err != nil {
		return nil, &ParamsError{Err: err}
	}

	address, err := felt.FromString(p.Address)
	if err != nil {
		return nil, &ParamsError{Field: "address", Err: err}
	}

	oe := p.OutsideExecution
	caller, err := felt.FromString(oe.Caller)
	if err != nil {
		return nil, &ParamsError{Field: "outside_execution.caller", Err: err}
	}
	nonce, err := felt.FromString(oe.Nonce)
	if err != nil {
		return nil, &ParamsError{Field: "outside_execution.nonce", Err: err}
	}

	calls := make([]types.Call, len(oe.Calls))
	for i, c := range oe.Calls {
		field := fmt.Sprintf("outside_execution.calls[%d]", i)

		to, err := felt.FromString(c.ContractAddress)
		if err != nil {
			return nil, &ParamsError{Field: field + ".contract_address", Err: err}
		}
		calldata, err := parseFelts(c.Calldata)
		if err != nil {
			return nil, &ParamsError{Field: field + ".calldata", Err: err}
		}
		calls[i] = types.Call{To: to, Selector: resolveEntrypoint(c.Entrypoint), Calldata: calldata}
	}

	signature, err := parseFelts(p.Signature)
	if err != nil {
		return nil, &ParamsError{Field: "signature", Err: err}
	}

	return &Request{
		Address: address,
		Signed: Signed{
			Execution: Execution{
				Caller:        caller,
				Nonce:         nonce,
				ExecuteAfter:  oe.ExecuteAfter,
				ExecuteBefore: oe.ExecuteBefore,
				Calls:         calls,
			},
			Signature: signature,
		},
	}, nil
}

func resolveEntrypoint(entrypoint string) felt.Felt {
	if strings.HasPrefix(entrypoint, "0x") {
		return felt.MustFromHex(entrypoint)
	}
	return felt.SelectorFromName(entrypoint)
}

func parseFelts(values []string) ([]felt.Felt, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]felt.Felt, len(values))
	for i, v := range values {
		f, err := felt.FromString(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func feltStrings(values []felt.Felt) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}
