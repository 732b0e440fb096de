//go:build !linux

package hal

func reexec(env []string) error {
	return errExecUnsupported
}
