package bluez

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezDest     = "org.bluez"
	bluezRoot     = dbus.ObjectPath("/")
	adapterPrefix = "/org/bluez/"

	ifaceAdapter        = "org.bluez.Adapter1"
	ifaceDevice         = "org.bluez.Device1"
	ifaceGattService    = "org.bluez.GattService1"
	ifaceGattChar       = "org.bluez.GattCharacteristic1"
	ifaceProperties     = "org.freedesktop.DBus.Properties"
	ifaceObjectManager  = "org.freedesktop.DBus.ObjectManager"
)

// addrFromPath extracts a colon-separated MAC address from a BlueZ device object path
// (.../dev_AA_BB_CC_DD_EE_FF), the inverse of pathFromAddr. This conversion lives
// entirely inside the backend; the core never sees a path.
func addrFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return ""
	}
	s = s[i+1:]
	if !strings.HasPrefix(s, "dev_") {
		return ""
	}
	return strings.ReplaceAll(s[4:], "_", ":")
}

// pathFromAddr builds a device object path under adapterPath from a colon-separated MAC
// address.
func pathFromAddr(adapterPath dbus.ObjectPath, addr string) dbus.ObjectPath {
	s := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(string(adapterPath) + "/dev_" + s)
}

// isUnderDevice reports whether path names an object nested (at any depth) under device.
func isUnderDevice(path dbus.ObjectPath, device dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(device)+"/")
}
