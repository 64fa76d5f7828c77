// Package session models delegated, method-scoped credentials backed by an
// ephemeral key, and decides whether a call batch may be signed with one.
package session

import (
	"errors"
	"time"

	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// ErrEmptyAllowlist is returned when a session is created without methods.
var ErrEmptyAllowlist = errors.New("session requires at least one allowed method")

var (
	allowedMethodTypeHash = felt.TypeHash(`"Allowed Method"("Contract Address":"ContractAddress","selector":"selector")`)
	sessionTypeHash       = felt.TypeHash(`"Session"("Expires At":"timestamp","Allowed Methods":"merkletree","Session Key":"felt")`)
)

// AllowedMethod is a (contract, entrypoint) pair a session may call.
type AllowedMethod struct {
	ContractAddress felt.Felt `json:"contract_address"`
	Selector        felt.Felt `json:"selector"`
}

// NewAllowedMethod builds an allowed method from an entrypoint name.
func NewAllowedMethod(contract felt.Felt, entrypoint string) AllowedMethod {
	return AllowedMethod{ContractAddress: contract, Selector: felt.SelectorFromName(entrypoint)}
}

func (m AllowedMethod) hash() felt.Felt {
	return felt.PoseidonMany(allowedMethodTypeHash, m.ContractAddress, m.Selector)
}

// Session is an allowlist of methods, an expiry and the session public key.
type Session struct {
	Methods    []AllowedMethod `json:"methods"`
	ExpiresAt  uint64          `json:"expires_at"`
	SessionKey felt.Felt       `json:"session_key"`
}

// New creates a session. The allowlist must not be empty.
func New(methods []AllowedMethod, expiresAt uint64, sessionKey felt.Felt) (*Session, error) {
	if len(methods) == 0 {
		return nil, ErrEmptyAllowlist
	}
	return &Session{
		Methods:    append([]AllowedMethod(nil), methods...),
		ExpiresAt:  expiresAt,
		SessionKey: sessionKey,
	}, nil
}

// IsCallAllowed reports whether (call.To, call.Selector) is in the allowlist.
func (s *Session) IsCallAllowed(call types.Call) bool {
	for _, m := range s.Methods {
		if m.ContractAddress == call.To && m.Selector == call.Selector {
			return true
		}
	}
	return false
}

// IsExpired reports whether the session has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return uint64(now.Unix()) >= s.ExpiresAt
}

// Hash returns the commitment the owner and guardian sign to authorize the
// session for account on chainID.
func (s *Session) Hash(chainID, account felt.Felt) felt.Felt {
	structHash := felt.PoseidonMany(
		sessionTypeHash,
		felt.FromUint64(s.ExpiresAt),
		s.MethodsRoot(),
		s.SessionKey,
	)

	domain := felt.Domain{Name: "SessionAccount.session", Version: 1, ChainID: chainID, Revision: 1}
	return felt.MessageHash(domain, account, structHash)
}

// MethodsRoot returns the merkle root of the allowed method hashes.
func (s *Session) MethodsRoot() felt.Felt {
	leaves := make([]felt.Felt, len(s.Methods))
	for i, m := range s.Methods {
		leaves[i] = m.hash()
	}
	return felt.MerkleRoot(leaves...)
}

// Serialize returns [expires_at, len(methods), (contract, selector)..., session_key].
func (s *Session) Serialize() []felt.Felt {
	out := make([]felt.Felt, 0, 3+2*len(s.Methods))
	out = append(out, felt.FromUint64(s.ExpiresAt), felt.FromUint64(uint64(len(s.Methods))))
	for _, m := range s.Methods {
		out = append(out, m.ContractAddress, m.Selector)
	}
	return append(out, s.SessionKey)
}

// Credentials bind the session key to the account.
type Credentials struct {
	// Authorization is the owner+guardian signature over the session hash.
	Authorization []felt.Felt `json:"authorization"`
	// PrivateKey is the session key's raw scalar.
	PrivateKey felt.Felt `json:"private_key"`
}

// Metadata is the persisted unit for a session.
type Metadata struct {
	Session     Session     `json:"session"`
	MaxFee      *felt.Felt  `json:"max_fee,omitempty"`
	Credentials Credentials `json:"credentials"`
}
