package analyser

import "github.com/waivern/wct/pkg/component"

// RegisterAll adds every built-in analyser factory to the registry.
func RegisterAll(r *component.Registry) error {
	for _, f := range []component.Factory{
		PersonalDataFactory{},
		DataSubjectFactory{},
		ProcessingPurposeFactory{},
	} {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}
