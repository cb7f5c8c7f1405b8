// Package errors provides the classified error primitives used across linkscan.
//
// A ClassifiedError carries a category (config, store, catalog, network, ...),
// a severity and a retry hint. Adapters translate them into HTTP status codes
// and CLI exit codes.
//
//	err := errors.StoreError("insert finding failed").
//		WithContext("scan_id", id).
//		Build().Wrap(dbErr)
package errors
