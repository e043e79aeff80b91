package domain

import (
	"fmt"
	"sort"
)

// =============================================================================
// Device
// =============================================================================

// Device represents a controllable device discovered on the local network.
// Devices are ephemeral: they are produced per discovery run and never
// persisted by the discovery or pipeline code itself.
type Device struct {
	// Address is the device's network endpoint (IP or host), unique per run.
	Address string `json:"address" db:"address"`

	// Name is the device's advertised friendly name. Discovery synthesizes
	// "device-<address>" when the device does not advertise one.
	Name string `json:"name" db:"name"`

	// Model is the device's model name or number, if advertised.
	Model string `json:"model,omitempty" db:"model"`

	// Serial is the device's serial identifier, if advertised.
	Serial string `json:"serial,omitempty" db:"serial"`

	// SoftwareVersion is the advertised firmware/software version, if any.
	SoftwareVersion string `json:"software_version,omitempty" db:"software_version"`

	// DeviceClass is an optional tag describing the kind of device.
	DeviceClass string `json:"device_class,omitempty" db:"device_class"`
}

// SynthesizeName returns the fallback display name for a device that did not
// advertise one.
func SynthesizeName(address string) string {
	return fmt.Sprintf("device-%s", address)
}

// Merge overlays fields from other onto d, field by field. Only non-empty
// fields of other win; empty fields keep d's value. The address must already
// match — Merge never changes identity.
func (d Device) Merge(other Device) Device {
	if other.Name != "" {
		d.Name = other.Name
	}
	if other.Model != "" {
		d.Model = other.Model
	}
	if other.Serial != "" {
		d.Serial = other.Serial
	}
	if other.SoftwareVersion != "" {
		d.SoftwareVersion = other.SoftwareVersion
	}
	if other.DeviceClass != "" {
		d.DeviceClass = other.DeviceClass
	}
	return d
}

// SortDevices orders devices by display name, case-sensitive lexicographic.
// Ties fall back to address so the order is deterministic.
func SortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].Address < devices[j].Address
	})
}

// =============================================================================
// AuthorizedDevice
// =============================================================================

// AuthorizedDevice is a Device plus the credential that was verified against
// it. It lives for one orchestration run unless explicitly persisted by the
// project store.
type AuthorizedDevice struct {
	Device

	// Credential is the opaque secret accepted by the device's installer
	// endpoints.
	Credential string `json:"credential" db:"credential"`
}
