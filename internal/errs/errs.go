// Package errs defines the closed error taxonomy surfaced to chat users.
// Each case is its own type so callers can match with errors.Is / errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized marks a command refused because of the sender's connection.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrCouldNotGetChannelIdentifier is returned when page markup carries no channel id.
	ErrCouldNotGetChannelIdentifier = errors.New("could not get channel identifier")
)

// UnsupportedURLError reports input that is not a recognized resource URL.
type UnsupportedURLError struct {
	URL string
}

func (e *UnsupportedURLError) Error() string {
	return fmt.Sprintf("unsupported URL: %q", e.URL)
}

// InvalidTaskNameError reports a task or folder name outside [-_A-Za-z0-9]+.
type InvalidTaskNameError struct {
	Name string
}

func (e *InvalidTaskNameError) Error() string {
	return fmt.Sprintf("invalid task name: %q", e.Name)
}

// NotImplementedError reports a known-unsupported operation.
type NotImplementedError struct {
	What string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not implemented: %s", e.What)
}

// ListingFilesError reports a failure listing the stash of a folder.
type ListingFilesError struct {
	Folder string
	Err    error
}

func (e *ListingFilesError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error listing files for %s", e.Folder)
	}
	return fmt.Sprintf("error listing files for %s: %v", e.Folder, e.Err)
}

func (e *ListingFilesError) Unwrap() error { return e.Err }

// CreatingFolderError reports a failure preparing the working folder of a task.
type CreatingFolderError struct {
	Folder string
	Err    error
}

func (e *CreatingFolderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error creating folder %s", e.Folder)
	}
	return fmt.Sprintf("error creating folder %s: %v", e.Folder, e.Err)
}

func (e *CreatingFolderError) Unwrap() error { return e.Err }

// IOError wraps a failure of an external collaborator (process, network, parse).
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// UTF8DecodingError reports collaborator output that is not valid UTF-8.
type UTF8DecodingError struct {
	Source string
}

func (e *UTF8DecodingError) Error() string {
	return fmt.Sprintf("output of %s is not valid UTF-8", e.Source)
}
