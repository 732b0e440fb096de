//go:build linux

package hal

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

type sysLinkOps struct{}

func (sysLinkOps) setUp(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("find link: %w", err)
	}
	return netlink.LinkSetUp(link)
}

func (sysLinkOps) setDown(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("find link: %w", err)
	}
	return netlink.LinkSetDown(link)
}

func (sysLinkOps) state(iface string) (bool, string, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return false, "", fmt.Errorf("find link: %w", err)
	}
	if link.Attrs().OperState != netlink.OperUp {
		return false, "", nil
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return true, "", fmt.Errorf("list addrs: %w", err)
	}
	if len(addrs) == 0 {
		return true, "", nil
	}
	return true, addrs[0].IP.String(), nil
}
