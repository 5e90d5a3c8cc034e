package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// directNamespace seeds the name-based ids of direct conversations.
var directNamespace = uuid.MustParse("9a4c1f0e-2b7d-5e8a-9c3f-6d1e0b4a7c52")

// PairKey is the order-independent key of an unordered pair of user ids.
func PairKey(a, b string) string {
	ids := []string{strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(ids[0] + ":" + ids[1]))
	return hex.EncodeToString(sum[:])
}

// DirectConversationID derives the id of the direct conversation for a pair key.
func DirectConversationID(pairKey string) uuid.UUID {
	return uuid.NewSHA1(directNamespace, []byte(pairKey))
}
