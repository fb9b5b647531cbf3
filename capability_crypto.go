// capability_crypto.go: the crypto:: capability namespace.

package serval

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// registerCryptoCapabilities installs crypto::{sha256, hash_hex, hmac_sha256,
// random_hex, uuid}.
func registerCryptoCapabilities(t *CapabilityTable) {
	// crypto::sha256(data) -> hex digest string
	t.Register("crypto", "sha256", func(args []Value) (Value, error) {
		s, err := oneStringArg("crypto::sha256", args)
		if err != nil {
			return NullValue, err
		}
		sum := sha256.Sum256([]byte(s))
		return StringValue(hex.EncodeToString(sum[:])), nil
	})

	// crypto::hash_hex(data) -> short content fingerprint (first 16 hex chars)
	t.Register("crypto", "hash_hex", func(args []Value) (Value, error) {
		s, err := oneStringArg("crypto::hash_hex", args)
		if err != nil {
			return NullValue, err
		}
		sum := sha256.Sum256([]byte(s))
		return StringValue(hex.EncodeToString(sum[:8])), nil
	})

	// crypto::hmac_sha256(key, data) -> hex MAC string
	t.Register("crypto", "hmac_sha256", func(args []Value) (Value, error) {
		if len(args) != 2 || args[0].Tag != VString || args[1].Tag != VString {
			return NullValue, fmt.Errorf("crypto::hmac_sha256 expects (key: string, data: string)")
		}
		mac := hmac.New(sha256.New, []byte(args[0].Data.(string)))
		mac.Write([]byte(args[1].Data.(string)))
		return StringValue(hex.EncodeToString(mac.Sum(nil))), nil
	})

	// crypto::random_hex(n) -> n random bytes, hex encoded (n capped at 1024)
	t.Register("crypto", "random_hex", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Tag != VInt {
			return NullValue, fmt.Errorf("crypto::random_hex expects (n: int)")
		}
		n := args[0].Data.(int64)
		if n < 1 || n > 1024 {
			return NullValue, fmt.Errorf("crypto::random_hex size %d out of range [1, 1024]", n)
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return NullValue, fmt.Errorf("randomness unavailable: %w", err)
		}
		return StringValue(hex.EncodeToString(buf)), nil
	})

	// crypto::uuid() -> random UUID v4 string
	t.Register("crypto", "uuid", func(args []Value) (Value, error) {
		if len(args) != 0 {
			return NullValue, fmt.Errorf("crypto::uuid expects no arguments")
		}
		var b [16]byte
		if _, err := rand.Read(b[:]); err != nil {
			return NullValue, fmt.Errorf("randomness unavailable: %w", err)
		}
		b[6] = (b[6] & 0x0f) | 0x40
		b[8] = (b[8] & 0x3f) | 0x80
		return StringValue(fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])), nil
	})
}

// oneStringArg validates a single string argument.
func oneStringArg(name string, args []Value) (string, error) {
	if len(args) != 1 || args[0].Tag != VString {
		return "", fmt.Errorf("%s expects (data: string)", name)
	}
	return args[0].Data.(string), nil
}
