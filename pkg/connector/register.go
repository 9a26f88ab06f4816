package connector

import "github.com/waivern/wct/pkg/component"

// RegisterAll adds every built-in connector factory to the registry.
func RegisterAll(r *component.Registry) error {
	for _, f := range []component.Factory{
		FilesystemFactory{},
		SQLiteFactory{},
	} {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}
