// Package cqrs holds the typed outcomes of commands and their HTTP status.
package cqrs

import "net/http"

type CreateCommandResult int

const (
	CreateDone CreateCommandResult = iota
	CreateFailedConflict
	CreateFailedNotFound
	CreateFailedUnauthorized
)

func (r CreateCommandResult) String() string {
	switch r {
	case CreateDone:
		return "Done"
	case CreateFailedConflict:
		return "Failed_Conflict"
	case CreateFailedNotFound:
		return "Failed_NotFound"
	case CreateFailedUnauthorized:
		return "Failed_Unauthorized"
	}
	return "Unknown"
}

func (r CreateCommandResult) Status() int {
	switch r {
	case CreateDone:
		return http.StatusCreated
	case CreateFailedConflict:
		return http.StatusConflict
	case CreateFailedNotFound:
		return http.StatusNotFound
	case CreateFailedUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

type ModifyCommandResult int

const (
	ModifyDone ModifyCommandResult = iota
	ModifyFailedNotFound
	ModifyFailedConflict
	ModifyFailedUnauthorized
)

func (r ModifyCommandResult) String() string {
	switch r {
	case ModifyDone:
		return "Done"
	case ModifyFailedNotFound:
		return "Failed_NotFound"
	case ModifyFailedConflict:
		return "Failed_Conflict"
	case ModifyFailedUnauthorized:
		return "Failed_Unauthorized"
	}
	return "Unknown"
}

func (r ModifyCommandResult) Status() int {
	switch r {
	case ModifyDone:
		return http.StatusOK
	case ModifyFailedNotFound:
		return http.StatusNotFound
	case ModifyFailedConflict:
		return http.StatusConflict
	case ModifyFailedUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

type DeleteCommandResult int

const (
	DeleteDone DeleteCommandResult = iota
	DeleteFailedNotFound
	DeleteFailedConflict
	DeleteFailedUnauthorized
)

func (r DeleteCommandResult) String() string {
	switch r {
	case DeleteDone:
		return "Done"
	case DeleteFailedNotFound:
		return "Failed_NotFound"
	case DeleteFailedConflict:
		return "Failed_Conflict"
	case DeleteFailedUnauthorized:
		return "Failed_Unauthorized"
	}
	return "Unknown"
}

func (r DeleteCommandResult) Status() int {
	switch r {
	case DeleteDone:
		return http.StatusNoContent
	case DeleteFailedNotFound:
		return http.StatusNotFound
	case DeleteFailedConflict:
		return http.StatusConflict
	case DeleteFailedUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

type InvalidateAccessCommandResult int

const (
	InvalidateDone InvalidateAccessCommandResult = iota
	InvalidateFailedNotFound
	InvalidateFailedUnauthorized
)

func (r InvalidateAccessCommandResult) String() string {
	switch r {
	case InvalidateDone:
		return "Done"
	case InvalidateFailedNotFound:
		return "Failed_NotFound"
	case InvalidateFailedUnauthorized:
		return "Failed_Unauthorized"
	}
	return "Unknown"
}

// Status maps an unauthorized invalidation to 401: the caller's identity
// does not match the account.
func (r InvalidateAccessCommandResult) Status() int {
	switch r {
	case InvalidateDone:
		return http.StatusNoContent
	case InvalidateFailedNotFound:
		return http.StatusNotFound
	case InvalidateFailedUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
