package main

import "fmt"

type exitError struct {
	code    int
	message string
	silent  bool
}

func (e exitError) Error() string {
	return e.message
}

func exitWithf(code int, format string, args ...any) error {
	return exitError{code: code, message: fmt.Sprintf(format, args...)}
}
