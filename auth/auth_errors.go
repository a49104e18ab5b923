package auth

import "errors"

var (
	InvalidCredentialsErr = errors.New("invalid username or password")
	UnsupportedRefErr     = errors.New("unsupported reference shape")
)
