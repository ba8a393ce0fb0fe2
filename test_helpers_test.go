package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// configFixture 返回 internal/config/testdata 下的夹具路径。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return filepath.Join(repoRoot, "internal", "config", "testdata", name)
}

// useBufferWriters 在测试期间把 stdOut/stdErr 替换为内存 buffer。
func useBufferWriters(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = outBuf, errBuf

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
	})
	return outBuf, errBuf
}
