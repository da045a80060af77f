//go:build !linux

package serial

import "fmt"

const defaultBackend = BackendBugst

func openTermios(s Settings) (Transport, error) {
	return nil, fmt.Errorf("%w: the %s backend is only available on linux", ErrTransport, BackendTermios)
}
