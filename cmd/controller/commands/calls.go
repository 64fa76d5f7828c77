package commands

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/internal/validation"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// parseCall parses "<contract>:<entrypoint>[:<arg>,<arg>...]". Arguments are
// felts in hex or decimal.
func parseCall(raw string) (types.Call, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return types.Call{}, fmt.Errorf("call %q: expected <contract>:<entrypoint>[:<args>]", raw)
	}

	to, err := felt.FromString(parts[0])
	if err != nil {
		return types.Call{}, fmt.Errorf("call %q: contract: %w", raw, err)
	}
	selector, err := parseEntrypoint(parts[1])
	if err != nil {
		return types.Call{}, fmt.Errorf("call %q: %w", raw, err)
	}

	var calldata []felt.Felt
	if len(parts) == 3 && parts[2] != "" {
		for _, arg := range strings.Split(parts[2], ",") {
			v, err := felt.FromString(strings.TrimSpace(arg))
			if err != nil {
				return types.Call{}, fmt.Errorf("call %q: argument %q: %w", raw, arg, err)
			}
			calldata = append(calldata, v)
		}
	}

	return types.Call{To: to, Selector: selector, Calldata: calldata}, nil
}

func parseCalls(raws []string) ([]types.Call, error) {
	if len(raws) == 0 {
		return nil, fmt.Errorf("at least one --call is required")
	}
	calls := make([]types.Call, 0, len(raws))
	for _, raw := range raws {
		c, err := parseCall(raw)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// parseAllowed parses "<contract>:<entrypoint>" into a session method.
func parseAllowed(raw string) (session.AllowedMethod, error) {
	contract, entrypoint, ok := strings.Cut(raw, ":")
	if !ok {
		return session.AllowedMethod{}, fmt.Errorf("method %q: expected <contract>:<entrypoint>", raw)
	}
	to, err := felt.FromString(contract)
	if err != nil {
		return session.AllowedMethod{}, fmt.Errorf("method %q: contract: %w", raw, err)
	}
	selector, err := parseEntrypoint(entrypoint)
	if err != nil {
		return session.AllowedMethod{}, fmt.Errorf("method %q: %w", raw, err)
	}
	return session.AllowedMethod{ContractAddress: to, Selector: selector}, nil
}

func parseEntrypoint(s string) (felt.Felt, error) {
	if err := validation.ValidateEntrypoint(s); err != nil {
		return felt.Zero, err
	}
	if strings.HasPrefix(s, "0x") {
		return felt.FromHex(s)
	}
	return felt.SelectorFromName(s), nil
}

// randomNonce draws an outside-execution nonce. 31 bytes always fit a felt.
func randomNonce() (felt.Felt, error) {
	var b [31]byte
	if _, err := rand.Read(b[:]); err != nil {
		return felt.Zero, fmt.Errorf("nonce: %w", err)
	}
	return felt.FromBytes(b[:])
}
