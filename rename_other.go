//go:build !unix && !windows

package logrollx

func isCrossDevice(error) bool { return false }
