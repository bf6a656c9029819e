package util

import "os"

// RemoveIfExists deletes a local file and treats an already missing file as
// done. It never fails; the returned bool reports whether this call removed it.
func RemoveIfExists(path string) bool {
	if path == "" {
		return false
	}
	// 文件不存在是正常情况：worker 已经清理过，或者从未落盘
	return os.Remove(path) == nil
}

// RemoveAll runs RemoveIfExists over every path and returns how many files
// this call actually deleted.
func RemoveAll(paths []string) int {
	removed := 0
	for _, p := range paths {
		if RemoveIfExists(p) {
			removed++
		}
	}
	return removed
}
