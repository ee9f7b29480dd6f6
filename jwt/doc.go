// Package jwt issues and verifies the two kinds of signed bearer tokens:
// end-user tokens and administrator tokens.
//
// Each kind has its own HMAC secret and lifetime. A token carries exactly one
// claim variant, tagged by the "knd" claim. Verification walks an explicit,
// ordered list of keys chosen by a per-endpoint [Policy]: the hinted kind
// first, and the other kind only when the endpoint accepts both and the
// hinted key rejected the signature.
package jwt
