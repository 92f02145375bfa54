// Package wallet wraps the wallet backend REST API: email OTP login, generic
// authenticated endpoint calls and token transfers.
package wallet
