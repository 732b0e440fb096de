//go:build !linux

package hal

import "errors"

var errNoNetlink = errors.New("netlink requires linux")

type sysLinkOps struct{}

func (sysLinkOps) setUp(string) error   { return errNoNetlink }
func (sysLinkOps) setDown(string) error { return errNoNetlink }

func (sysLinkOps) state(string) (bool, string, error) {
	return false, "", errNoNetlink
}
