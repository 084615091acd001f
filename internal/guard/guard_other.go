//go:build !linux

package guard

func sampleHost() (HealthSample, error) {
	return HealthSample{}, errUnsupported
}

func raisePriority() error {
	return errUnsupported
}

func pinAffinity(reserved, n int) error {
	return errUnsupported
}
