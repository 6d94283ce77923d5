//go:build !linux

package sysutil

import "errors"

var errUnsupported = errors.New("mount table not supported on this platform")

func MountPointsOf(devPath string) ([]string, error) { return nil, errUnsupported }
func DetachMount(mountPoint string) error            { return errUnsupported }
