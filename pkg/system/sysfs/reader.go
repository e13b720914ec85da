//go:build linux

package sysfs

import (
	"os"
	"strconv"
	"strings"

	"k8s.io/utils/cpuset"

	"github.com/ja7ad/energymodel/pkg/types"
)

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readUint(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

func readCPUList(path string) (cpuset.CPUSet, error) {
	s, err := readString(path)
	if err != nil {
		return cpuset.New(), err
	}
	return types.ParseCPUList(s)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
