package app

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrEmptyUpload           = errors.New("uploaded file is empty")
	ErrPayloadTooLarge       = errors.New("uploaded file is too large")
	ErrUnsupportedType       = errors.New("file type is not supported")
	ErrMessageEmpty          = errors.New("message content is empty")
	ErrMessageEnqueue        = errors.New("message enqueue failed")
	ErrGenerationUnavailable = errors.New("answer generation is unavailable")
	ErrUsernameExists        = errors.New("username already exists")
	ErrEmailExists           = errors.New("email already exists")
	ErrInvalidCredential     = errors.New("invalid username or password")
)
