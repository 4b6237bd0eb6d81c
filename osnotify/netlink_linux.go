//go:build linux

package osnotify

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// netlinkSource monitors kernel uevents over a netlink socket, the same
// mechanism udevadm and udev itself use to learn about USB hotplug.
// Receive multiplexes the netlink socket against an eventfd wakeup
// descriptor via unix.Select, with a 5s timeout so the monitor loop can
// periodically recheck for shutdown even with no traffic.
type netlinkSource struct {
	fd     int
	wakefd int
	buf    [uevetBufferSize]byte
}

const uevetBufferSize = 4096

// netlinkKObjectUEvent is NETLINK_KOBJECT_UEVENT, the netlink protocol
// family the kernel broadcasts udev events on.
const netlinkKObjectUEvent = 15

// NewNetlinkSource opens a netlink socket bound to the kernel uevent
// broadcast group and an eventfd used to interrupt a blocked Receive.
func NewNetlinkSource() (Source, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, netlinkKObjectUEvent)
	if err != nil {
		return nil, fmt.Errorf("osnotify: open netlink socket: %w", err)
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("osnotify: bind netlink socket: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("osnotify: create wakeup descriptor: %w", err)
	}
	return &netlinkSource{fd: fd, wakefd: wakefd}, nil
}

// Enumerate lists the usb_device syspaths currently under sysfs.
func (s *netlinkSource) Enumerate() ([]string, error) {
	return enumerateSysfsUSBDevices()
}

// Receive blocks in unix.Select over the netlink socket and the wakeup
// descriptor, per the concurrency model's multiplexed-wait design.
func (s *netlinkSource) Receive() (Event, error) {
	for {
		rset := &unix.FdSet{}
		fdSet(rset, s.fd)
		fdSet(rset, s.wakefd)
		hi := s.fd
		if s.wakefd > hi {
			hi = s.wakefd
		}
		timeout := unix.NsecToTimeval(pollTimeout.Nanoseconds())

		n, err := unix.Select(hi+1, rset, nil, nil, &timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Event{}, fmt.Errorf("osnotify: select: %w", err)
		}
		if n == 0 {
			return Event{}, ErrTimeout
		}
		if fdIsSet(rset, s.wakefd) {
			return Event{}, ErrStopped
		}
		if fdIsSet(rset, s.fd) {
			ev, ok, err := s.readEvent()
			if err != nil {
				return Event{}, err
			}
			if !ok {
				continue
			}
			return ev, nil
		}
	}
}

func (s *netlinkSource) readEvent() (Event, bool, error) {
	n, err := unix.Read(s.fd, s.buf[:])
	if err == unix.EAGAIN {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("osnotify: read netlink socket: %w", err)
	}
	fields := parseUEventFields(s.buf[:n])
	if fields["SUBSYSTEM"] != "usb" || fields["DEVTYPE"] != "usb_device" {
		return Event{}, false, nil
	}
	action, ok := parseAction(fields)
	if !ok {
		return Event{}, false, nil
	}
	devpath := fields["DEVPATH"]
	handle := sysfsUSBPath + "/" + lastPathComponent(devpath)
	return Event{Action: action, Handle: handle}, true, nil
}

func parseAction(fields map[string]string) (Action, bool) {
	switch fields["ACTION"] {
	case "add":
		return ActionAdd, true
	case "remove":
		return ActionRemove, true
	case "change":
		return ActionChange, true
	default:
		return 0, false
	}
}

// parseUEventFields splits a netlink uevent payload into its
// NUL-separated KEY=value pairs, plus the leading "add@<devpath>"-style
// header line folded into ACTION/DEVPATH.
func parseUEventFields(data []byte) map[string]string {
	fields := make(map[string]string)
	for _, line := range bytes.Split(data, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)
		if idx := strings.IndexByte(s, '='); idx >= 0 {
			fields[s[:idx]] = s[idx+1:]
			continue
		}
		for _, action := range []string{"add", "remove", "change"} {
			if prefix := action + "@"; strings.HasPrefix(s, prefix) {
				fields["ACTION"] = action
				fields["DEVPATH"] = s[len(prefix):]
			}
		}
	}
	return fields
}

func lastPathComponent(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// Wake causes a blocked Receive call to return ErrStopped by writing to
// the eventfd it selects on.
func (s *netlinkSource) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(s.wakefd, buf[:])
	return err
}

// Close releases the netlink socket and the wakeup descriptor.
func (s *netlinkSource) Close() error {
	unix.Close(s.wakefd)
	return unix.Close(s.fd)
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
