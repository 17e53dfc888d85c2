package connectors

import "fmt"

// BinanceErrorCodes maps Binance API error codes to human-readable messages.
var BinanceErrorCodes = map[int]string{
	-1000:  "UNKNOWN",                 // Unknown error while processing the request
	-1001:  "DISCONNECTED",            // Internal error, unable to process the request
	-1003:  "TOO_MANY_REQUESTS",       // Request weight or order rate limit exceeded
	-1006:  "UNEXPECTED_RESP",         // Unexpected response from the message bus
	-1007:  "TIMEOUT",                 // Timeout waiting for the backend server
	-1013:  "INVALID_QUANTITY",        // Quantity violates the symbol filters
	-1021:  "INVALID_TIMESTAMP",       // Timestamp outside the recvWindow
	-1022:  "INVALID_SIGNATURE",       // Signature for this request is not valid
	-1102:  "MANDATORY_PARAM_EMPTY",   // Mandatory parameter missing or malformed
	-1121:  "INVALID_SYMBOL",          // Symbol not recognized
	-2010:  "NEW_ORDER_REJECTED",      // Order placement rejected by the matching engine
	-2011:  "CANCEL_REJECTED",         // Order cancel rejected
	-2013:  "NO_SUCH_ORDER",           // Order does not exist
	-2015:  "REJECTED_API_KEY",        // Invalid API key, IP, or permissions for action
	-2019:  "MARGIN_NOT_SUFFICIENT",   // Margin is insufficient
	-3006:  "BORROW_EXCEEDS_LIMIT",    // Borrow amount exceeds maximum borrowable
	-3008:  "BORROW_NOT_ALLOWED",      // Borrowing is not currently allowed
	-3012:  "BORROW_BANNED",           // Borrowing is banned for this asset
	-3015:  "REPAY_EXCEEDS_LIABILITY", // Repay amount exceeds outstanding liability
	-3020:  "TRANSFER_EXCEEDS_MAX",    // Transfer out amount exceeds maximum
	-3041:  "BALANCE_NOT_ENOUGH",      // Balance is not enough for the operation
	-3045:  "SYSTEM_NO_ASSET",         // The system does not have enough asset now
	-11008: "EXCEEDING_ACCOUNT_LIMIT", // Exceeding the account's maximum borrowable limit
}

// transientCodes are the Binance errors worth retrying: infrastructure
// hiccups, throttling, and temporary liquidity shortfalls. Everything else
// means the request itself is wrong and a retry cannot help.
var transientCodes = map[int]bool{
	-1000: true,
	-1001: true,
	-1003: true,
	-1006: true,
	-1007: true,
	-3045: true,
}

// GetErrorMsg returns a human-readable message for a given Binance error
// code. If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BINANCE_ERROR_%d", code)
}

// ExchangeError is a non-2xx or coded reply from the exchange.
type ExchangeError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("binance error %d (%s): %s", e.Code, GetErrorMsg(e.Code), e.Message)
}

// Transient reports whether retrying the identical request may succeed.
func (e *ExchangeError) Transient() bool {
	if e.HTTPStatus == 429 || e.HTTPStatus == 418 || e.HTTPStatus >= 500 {
		return true
	}
	return transientCodes[e.Code]
}
