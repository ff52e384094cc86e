package fsxs3

import "testing"

func TestKeyJoinsPrefix(t *testing.T) {
	fs := NewS3FileSystem(nil, "bucket", "tenants/acme")
	if got := fs.key("uploads/report.pdf"); got != "tenants/acme/uploads/report.pdf" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestKeyWithoutPrefixStripsLeadingSlash(t *testing.T) {
	fs := NewS3FileSystem(nil, "bucket", "")
	if got := fs.key("/uploads/report.pdf"); got != "uploads/report.pdf" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestJoinUsesSlashSeparator(t *testing.T) {
	fs := NewS3FileSystem(nil, "bucket", "")
	if got := fs.Join("a", "b", "c.txt"); got != "a/b/c.txt" {
		t.Fatalf("unexpected join: %q", got)
	}
}
