// Package otp issues and verifies short numeric one-time passcodes.
//
// Codes are generated from crypto/rand, stored only as a one-way hash in a
// [store.OTPStore], expire after a fixed lifetime and tolerate a bounded
// number of wrong guesses. A successful verification consumes the record.
package otp
