package model

import "errors"

var (
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation rejects an edit and leaves state unchanged.
	ErrValidation = errors.New("validation error")
	// ErrQuoteFetch means the quote source was unreachable or returned nothing usable.
	ErrQuoteFetch = errors.New("quote fetch failed")
	// ErrRefreshInFlight is returned by a manual refresh while another is fetching.
	ErrRefreshInFlight = errors.New("refresh already in flight")
	ErrUnknownHolding  = errors.New("unknown holding")
	ErrStoreClosed     = errors.New("portfolio store closed")
)
