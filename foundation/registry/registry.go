// Package registry reads the device folder and creates a display-name
// lookup for the field devices that author transactions.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Registry maintains a map of device ids for name lookup. Each file in the
// device folder is named <device-id>.name and contains the display name
// for that device.
type Registry struct {
	devices map[string]string
}

// New constructs a device registry from the specified folder. A folder
// that does not exist yet is created and yields an empty registry, so a
// fresh deployment starts before any devices are named.
func New(root string) (*Registry, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create device folder: %w", err)
	}

	r := Registry{
		devices: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".name" {
			return nil
		}

		content, err := os.ReadFile(fileName)
		if err != nil {
			return err
		}

		deviceID := strings.TrimSuffix(path.Base(fileName), ".name")
		r.devices[deviceID] = strings.TrimSpace(string(content))

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &r, nil
}

// Lookup returns the display name for the specified device id, or the id
// itself when the device is unknown.
func (r *Registry) Lookup(deviceID string) string {
	name, exists := r.devices[deviceID]
	if !exists {
		return deviceID
	}
	return name
}

// Copy returns a copy of the map of device ids and names.
func (r *Registry) Copy() map[string]string {
	cpy := make(map[string]string, len(r.devices))
	for deviceID, name := range r.devices {
		cpy[deviceID] = name
	}
	return cpy
}
