//go:build !windows

package inject

func injectOS(TargetSpec, string) error {
	return ErrUnsupported
}
