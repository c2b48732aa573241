package webroot

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// get issues a request against a Handler over fsys and returns the response.
func get(t *testing.T, fsys billy.Filesystem, method, target string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	Handler(fsys).ServeHTTP(rec, req)
	return rec.Result()
}

func TestHandler_ServesFileBytes(t *testing.T) {
	fsys := memfs.New()
	content := []byte("hello, world\n")
	if err := util.WriteFile(fsys, "/hello.txt", content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resp := get(t, fsys, http.MethodGet, "/hello.txt")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(content) {
		t.Errorf("body = %q, want %q", body, content)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestHandler_MissingPathIs404(t *testing.T) {
	resp := get(t, memfs.New(), http.MethodGet, "/missing.txt")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_DirectoryWithIndexServesIt(t *testing.T) {
	fsys := memfs.New()
	if err := util.WriteFile(fsys, "/site/index.html", []byte("<h1>front page</h1>"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resp := get(t, fsys, http.MethodGet, "/site/")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := string(body); got != "<h1>front page</h1>" {
		t.Errorf("body = %q, want the index page", got)
	}
}

func TestHandler_DirectoryWithoutIndexLists(t *testing.T) {
	fsys := memfs.New()
	for _, name := range []string{"/docs/alpha.txt", "/docs/beta.txt"} {
		if err := util.WriteFile(fsys, name, []byte(name), 0644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}

	resp := get(t, fsys, http.MethodGet, "/docs/")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"alpha.txt", "beta.txt"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("listing does not mention %s:\n%s", want, body)
		}
	}
}

func TestHandler_NestedPath(t *testing.T) {
	fsys := memfs.New()
	if err := util.WriteFile(fsys, "/a/b/c.txt", []byte("deep"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resp := get(t, fsys, http.MethodGet, "/a/b/c.txt")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := string(body); got != "deep" {
		t.Errorf("body = %q, want %q", got, "deep")
	}
}

func TestHandler_WasmContentType(t *testing.T) {
	fsys := memfs.New()
	if err := util.WriteFile(fsys, "/app/main.wasm", []byte{0x00, 0x61, 0x73, 0x6d}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resp := get(t, fsys, http.MethodGet, "/app/main.wasm")
	resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/wasm" {
		t.Errorf("Content-Type = %q, want application/wasm", ct)
	}
}

func TestHandler_RangeRequest(t *testing.T) {
	fsys := memfs.New()
	if err := util.WriteFile(fsys, "/data.bin", []byte("0123456789"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/data.bin", nil)
	req.Header.Set("Range", "bytes=2-5")
	Handler(fsys).ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := string(body); got != "2345" {
		t.Errorf("body = %q, want %q", got, "2345")
	}
}

func TestHandler_HeadHasNoBody(t *testing.T) {
	fsys := memfs.New()
	if err := util.WriteFile(fsys, "/hello.txt", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resp := get(t, fsys, http.MethodHead, "/hello.txt")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD body = %q, want empty", body)
	}
}

// TestOpen_TraversalStaysInRoot verifies the jail: names that climb out of
// the served root never resolve to content outside it.
func TestOpen_TraversalStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("TOP SECRET"), 0644); err != nil {
		t.Fatalf("WriteFile secret: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "served.txt"), []byte("public"), 0644); err != nil {
		t.Fatalf("WriteFile served: %v", err)
	}

	hfs := FileSystem(osfs.New(root))

	for _, name := range []string{
		"/../secret.txt",
		"../secret.txt",
		"/./../../secret.txt",
		"/docs/../../secret.txt",
	} {
		f, err := hfs.Open(name)
		if err == nil {
			data, _ := io.ReadAll(f)
			f.Close()
			if strings.Contains(string(data), "TOP SECRET") {
				t.Fatalf("Open(%q) escaped the root", name)
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Open(%q) error = %v, want not-exist", name, err)
		}
	}

	// The in-root file still serves normally.
	f, err := hfs.Open("/served.txt")
	if err != nil {
		t.Fatalf("Open(/served.txt): %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if got := string(data); got != "public" {
		t.Errorf("served.txt = %q, want %q", got, "public")
	}
}

// TestHandler_TraversalOverHTTP drives the same property through the full
// request path, with the dots percent-encoded so they survive URL parsing.
func TestHandler_TraversalOverHTTP(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("TOP SECRET"), 0644); err != nil {
		t.Fatalf("WriteFile secret: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/..%2Fsecret.txt", nil)
	Handler(osfs.New(root)).ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK && strings.Contains(string(body), "TOP SECRET") {
		t.Fatalf("traversal reached content outside the root (status %d)", resp.StatusCode)
	}
}

func TestReaddir_Paging(t *testing.T) {
	fsys := memfs.New()
	for _, name := range []string{"/d/one", "/d/two", "/d/three"} {
		if err := util.WriteFile(fsys, name, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}

	f, err := FileSystem(fsys).Open("/d")
	if err != nil {
		t.Fatalf("Open(/d): %v", err)
	}
	defer f.Close()

	first, err := f.Readdir(2)
	if err != nil {
		t.Fatalf("Readdir(2): %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first page = %d entries, want 2", len(first))
	}

	second, err := f.Readdir(2)
	if err != nil {
		t.Fatalf("Readdir(2) again: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second page = %d entries, want 1", len(second))
	}

	if _, err := f.Readdir(2); err != io.EOF {
		t.Errorf("exhausted Readdir error = %v, want io.EOF", err)
	}
}
