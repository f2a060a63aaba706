package gamepad

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cjeanneret/RoverGo/internal/debug"
)

// DefaultInputDir is where the kernel exposes event devices.
const DefaultInputDir = "/dev/input"

const eventPrefix = "event"

// Watch reports the paths of event devices in dir: first the ones already
// present, then every one created or whose attributes change (udev fixes
// permissions after creation). A path may be reported more than once.
// The channel is closed when ctx is done or the watch fails.
func Watch(ctx context.Context, dir string) (<-chan string, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify init failed: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, dir, unix.IN_CREATE|unix.IN_ATTRIB); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("inotify add watch failed: %w", err)
	}
	// Non-blocking descriptor: the runtime poller serves reads and Close wakes them.
	watch := os.NewFile(uintptr(fd), "inotify:"+dir)

	existing, err := os.ReadDir(dir)
	if err != nil {
		_ = watch.Close()
		return nil, err
	}

	paths := make(chan string)
	go func() {
		<-ctx.Done()
		_ = watch.Close()
	}()
	go func() {
		defer close(paths)

		send := func(name string) bool {
			select {
			case paths <- filepath.Join(dir, name):
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, entry := range existing {
			if strings.HasPrefix(entry.Name(), eventPrefix) && !send(entry.Name()) {
				return
			}
		}

		buf := make([]byte, 4096)
		for {
			n, err := watch.Read(buf)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, os.ErrClosed) {
					debug.Fault("gamepad watch", err)
				}
				return
			}
			for _, name := range parseInotify(buf[:n]) {
				if strings.HasPrefix(name, eventPrefix) && !send(name) {
					return
				}
			}
		}
	}()
	return paths, nil
}

// parseInotify returns the file names of the inotify records in buf.
func parseInotify(buf []byte) []string {
	var names []string
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		// struct inotify_event: wd, mask, cookie, len, then the name
		nameLen := binary.NativeEndian.Uint32(buf[offset+12:])
		start := offset + unix.SizeofInotifyEvent
		end := start + int(nameLen)
		if end > len(buf) {
			break
		}
		if name := string(bytes.TrimRight(buf[start:end], "\x00")); name != "" {
			names = append(names, name)
		}
		offset = end
	}
	return names
}
