// Package sdnotify wraps the systemd readiness protocol. Every call is a
// no-op when NOTIFY_SOCKET is absent, so running outside systemd costs
// nothing.
package sdnotify

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
)

func Ready() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

func Stopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

func Status(msg string) {
	_, _ = daemon.SdNotify(false, "STATUS="+msg)
}

func Statusf(format string, args ...any) {
	Status(fmt.Sprintf(format, args...))
}
