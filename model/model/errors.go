package model

import "errors"

var (
	// ErrIdentityUnresolved - None of the configured unique
	// identifier fields carried a non-empty value. The record is
	// skipped, never created.
	ErrIdentityUnresolved = errors.New("no unique identifier field with value")

	// ErrMappingEmpty - Outbound push attempted with no mapped
	// fields. Fails the record, not the run.
	ErrMappingEmpty = errors.New("empty mapped field set")
)
