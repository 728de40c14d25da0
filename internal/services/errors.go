// Package services defines the business logic for paragraph ingestion,
// ranked word search, and aggregate reporting. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrEmptyInput is returned when a paragraph submission contains no
	// text after trimming. No ingestion task is created for such input.
	ErrEmptyInput = errors.New("no input provided")

	// ErrInputTooLong is returned when a submission exceeds the maximum
	// configured length limit.
	ErrInputTooLong = errors.New("input too long")

	// ErrEmptySearchWord is returned when a search request carries a blank
	// query word.
	ErrEmptySearchWord = errors.New("no search word provided")

	// ErrUserNotFound indicates that the referenced owner does not exist.
	// Retrying will not resolve a missing user, so the ingestion pipeline
	// treats this as a permanent failure.
	ErrUserNotFound = errors.New("user not found")

	// ErrParagraphNotFound indicates that the requested paragraph does not
	// exist or is not accessible to the current user.
	ErrParagraphNotFound = errors.New("paragraph not found")
)
