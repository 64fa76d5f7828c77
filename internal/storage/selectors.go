package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/better-wallet/controller/pkg/felt"
)

const sessionPrefix = "@controller/session/"

// SessionSelector returns the storage key of the session for address, origin
// and chain. The origin is path-escaped so distinct origins never collide.
func SessionSelector(address felt.Felt, origin string, chainID felt.Felt) string {
	return fmt.Sprintf("%s%s/%s/%s", sessionPrefix, address, url.PathEscape(origin), chainID)
}

// IsSessionKey reports whether key was produced by SessionSelector.
func IsSessionKey(key string) bool {
	return strings.HasPrefix(key, sessionPrefix)
}
