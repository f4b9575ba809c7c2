package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestOsWriteFile_DefaultWritesWithPerm(t *testing.T) {
	p := filepath.Join(t.TempDir(), "hello.txt")
	if err := osWriteFile(p, []byte("hi"), 0o600); err != nil {
		t.Fatalf("osWriteFile error: %v", err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("content = %q, want %q", string(got), "hi")
	}
	// Windows does not reliably enforce POSIX perms
	if runtime.GOOS != "windows" {
		st, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if st.Mode().Perm() != 0o600 {
			t.Fatalf("perm = %v, want 0600", st.Mode().Perm())
		}
	}
}

func TestTokenOut_UsesWriteSeam(t *testing.T) {
	orig := osWriteFile
	t.Cleanup(func() { osWriteFile = orig })

	var gotPath string
	var gotPerm uint32
	var gotData []byte
	osWriteFile = func(path string, b []byte, perm uint32) error {
		gotPath = path
		gotPerm = perm
		gotData = append([]byte(nil), b...)
		return nil
	}

	resetFlags(t)
	t.Setenv("METHODSEC_BEARER_SECRET", "0123456789abcdef0123456789abcdef")
	out, err := run(t, "token", "--sub", "alice", "--out", "x/y/alice.jwt")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if gotPath != "x/y/alice.jwt" || gotPerm != 0o600 {
		t.Fatalf("path = %q perm = %o", gotPath, gotPerm)
	}
	if strings.Count(string(gotData), ".") != 2 {
		t.Fatalf("data = %q, want a JWT", gotData)
	}
	if !strings.Contains(out, "Wrote x/y/alice.jwt") {
		t.Fatalf("out = %q", out)
	}
}
