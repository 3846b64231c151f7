// Package env provides facts about the host the link runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "radiolink"

// MachineID retrieves an ID identifying the machine which is stable across
// restarts. The raw machine ID is hashed with the application name so it is
// not exposed to subscribers.
func MachineID() (string, error) {
	return machineid.ProtectedID(appID)
}

// StationID returns the default station name used in forwarded topics.
// It prefers a short machine ID and falls back to the host name.
func StationID() string {
	if id, err := MachineID(); err == nil && len(id) >= 12 {
		return id[:12]
	} else if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return appID
}
