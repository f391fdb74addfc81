//go:build !unix

package service

import "errors"

func execSelf() error {
	return errors.New("re-exec is only supported on unix")
}
