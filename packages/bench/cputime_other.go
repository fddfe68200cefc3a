//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package bench

// ReadCPUTime is not supported on this platform and always returns zero.
func ReadCPUTime() CPUTime {
	return CPUTime{}
}
