package payhere

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// md5Upper returns the uppercase hex MD5 of the input, the building block of
// the PayHere IPN signature scheme.
func md5Upper(value string) string {
	sum := md5.Sum([]byte(value))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ComputeMD5Sig derives the expected signature for a notify payload:
// uppercase md5 over merchant id, order number, the amount and currency
// exactly as the gateway echoed them, the status code, and the hashed
// merchant secret.
func ComputeMD5Sig(merchantID, orderNumber, amount, currency, statusCode, merchantSecret string) string {
	return md5Upper(merchantID + orderNumber + amount + currency + statusCode + md5Upper(merchantSecret))
}

// VerifyMD5Sig reports whether the signature on a notify payload matches.
// Comparison is constant-time.
func VerifyMD5Sig(merchantID, orderNumber, amount, currency, statusCode, merchantSecret, got string) bool {
	want := ComputeMD5Sig(merchantID, orderNumber, amount, currency, statusCode, merchantSecret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(got))) == 1
}
