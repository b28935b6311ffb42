//go:build !linux

package worksteal

func pinThread(int) error { return nil }
