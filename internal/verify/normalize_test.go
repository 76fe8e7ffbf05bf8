package verify

import "testing"

// TestBaseDir tests directory extraction.
func TestBaseDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "query dropped", in: "https://cdn.example.com/path/index.m3u8?token=x", want: "https://cdn.example.com/path/"},
		{name: "nested", in: "https://cdn.example.com/a/b/c/master.m3u8", want: "https://cdn.example.com/a/b/c/"},
		{name: "root file", in: "https://cdn.example.com/index.m3u8", want: "https://cdn.example.com/"},
		{name: "no path", in: "https://cdn.example.com", want: "https://cdn.example.com/"},
		{name: "port kept", in: "http://127.0.0.1:8080/live/x.m3u8#frag", want: "http://127.0.0.1:8080/live/"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := BaseDir(tc.in)
			if err != nil {
				t.Fatalf("BaseDir() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("BaseDir(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestNormalize tests line rewriting.
func TestNormalize(t *testing.T) {
	t.Parallel()

	const base = "https://cdn.example.com/path/index.m3u8?token=x"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "relative segment",
			in:   "seg1.ts",
			want: "https://cdn.example.com/path/seg1.ts",
		},
		{
			name: "directive unchanged",
			in:   "#EXTINF:10",
			want: "#EXTINF:10",
		},
		{
			name: "absolute unchanged",
			in:   "https://other.example/seg1.ts?sig=1",
			want: "https://other.example/seg1.ts?sig=1",
		},
		{
			name: "dot slash stripped",
			in:   "./chunk/seg2.m4s",
			want: "https://cdn.example.com/path/chunk/seg2.m4s",
		},
		{
			name: "leading slash stripped",
			in:   "/variant/720.m3u8?token=y",
			want: "https://cdn.example.com/path/variant/720.m3u8?token=y",
		},
		{
			name: "protocol relative unchanged",
			in:   "//cdn2.example/seg.ts",
			want: "//cdn2.example/seg.ts",
		},
		{
			name: "non reference unchanged",
			in:   "something else",
			want: "something else",
		},
		{
			name: "full playlist keeps separators",
			in:   "#EXTM3U\r\n#EXT-X-VERSION:3\r\n#EXTINF:10,\r\nseg0.ts\r\n\r\n#EXTINF:10,\nseg1.ts",
			want: "#EXTM3U\r\n#EXT-X-VERSION:3\r\n#EXTINF:10,\r\nhttps://cdn.example.com/path/seg0.ts\r\n\r\n#EXTINF:10,\nhttps://cdn.example.com/path/seg1.ts",
		},
		{
			name: "trailing newline kept",
			in:   "#EXTM3U\nlow/index.m3u8\n",
			want: "#EXTM3U\nhttps://cdn.example.com/path/low/index.m3u8\n",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Normalize(tc.in, base)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestNormalizeIdempotent tests that a normalized playlist normalizes to itself.
func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	in := "#EXTM3U\n#EXTINF:4,\na.ts\n#EXTINF:4,\n./b.ts\n"
	once, err := Normalize(in, "https://cdn.example/x/index.m3u8")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Normalize(once, "https://cdn.example/x/index.m3u8")
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Errorf("expected idempotent normalization:\n%q\n%q", once, twice)
	}
}

// TestNormalizeInvalidBase tests base URL errors.
func TestNormalizeInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := Normalize("seg.ts", "http://[::1"); err == nil {
		t.Error("expected an error for an unparsable base")
	}
}
