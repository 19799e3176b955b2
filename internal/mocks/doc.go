// Package mocks provides hand-rolled in-memory fakes for the store and
// external service boundaries. Each fake supports optional Fn overrides
// for error injection and tracks calls for verification.
package mocks
