package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeEPATH(t *testing.T) {
	cases := []struct {
		name string
		path CIPPath
		want []byte
	}{
		{
			name: "8-bit with attribute",
			path: CIPPath{Class: 0x01, Instance: 0x01, Attribute: 0x01, HasAttribute: true},
			want: []byte{0x20, 0x01, 0x24, 0x01, 0x30, 0x01},
		},
		{
			name: "instance only",
			path: CIPPath{Class: 0x02, Instance: 0x01},
			want: []byte{0x20, 0x02, 0x24, 0x01},
		},
		{
			name: "16-bit padded",
			path: CIPPath{Class: 0x0100, Instance: 0x0200, Attribute: 0x0300, HasAttribute: true},
			want: []byte{0x21, 0x00, 0x00, 0x01, 0x25, 0x00, 0x00, 0x02, 0x31, 0x00, 0x00, 0x03},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EncodeEPATH(tc.path)
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("EncodeEPATH = % X, want % X", got, tc.want)
			}
			if len(got)%2 != 0 {
				t.Fatalf("EPATH not word aligned")
			}
			parsed, err := ParseEPATH(got)
			if err != nil {
				t.Fatalf("ParseEPATH failed: %v", err)
			}
			if parsed != tc.path {
				t.Fatalf("ParseEPATH = %+v, want %+v", parsed, tc.path)
			}
		})
	}
}

func TestCIPPathString(t *testing.T) {
	if got := (CIPPath{Class: 0x01, Instance: 1, Attribute: 6, HasAttribute: true}).String(); got != "0x01/1/6" {
		t.Fatalf("String() = %q", got)
	}
	if got := (CIPPath{Class: 0xF5, Instance: 2}).String(); got != "0xF5/2" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseEPATHSkipsPortSegment(t *testing.T) {
	path, err := ParseEPATH([]byte{0x01, 0x00, 0x20, 0x02, 0x24, 0x01})
	if err != nil {
		t.Fatalf("ParseEPATH failed: %v", err)
	}
	if path.Class != 0x02 || path.Instance != 0x01 || path.HasAttribute {
		t.Fatalf("unexpected path %+v", path)
	}
}

func TestParseEPATHErrors(t *testing.T) {
	cases := [][]byte{
		{0x28, 0x01},
		{0x20},
		{0x21, 0x00, 0x01},
	}
	for _, data := range cases {
		if _, err := ParseEPATH(data); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("ParseEPATH(% X) err = %v, want ErrInvalidPath", data, err)
		}
	}
}

func TestPortSegment(t *testing.T) {
	seg, err := PortSegment(1, []byte{0x00})
	if err != nil || !bytes.Equal(seg, []byte{0x01, 0x00}) {
		t.Fatalf("PortSegment(1, 0) = % X, %v", seg, err)
	}
	seg, err = PortSegment(2, []byte("10.0.0.10"))
	if err != nil {
		t.Fatalf("PortSegment failed: %v", err)
	}
	want := append([]byte{0x12, 0x09}, "10.0.0.10"...)
	want = append(want, 0x00)
	if !bytes.Equal(seg, want) {
		t.Fatalf("PortSegment = % X, want % X", seg, want)
	}
	if _, err := PortSegment(1, nil); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("empty link err = %v", err)
	}
}

func TestParseRoute(t *testing.T) {
	route, err := ParseRoute("1,0")
	if err != nil || !bytes.Equal(route, BackplaneRoute(0)) {
		t.Fatalf("ParseRoute(1,0) = % X, %v", route, err)
	}
	route, err = ParseRoute("2,10.0.0.10/1,3")
	if err != nil {
		t.Fatalf("ParseRoute failed: %v", err)
	}
	if len(route) != 14 || !bytes.Equal(route[12:], []byte{0x01, 0x03}) {
		t.Fatalf("ParseRoute = % X", route)
	}
	for _, bad := range []string{"", "1", "0,1", "x,1"} {
		if _, err := ParseRoute(bad); !errors.Is(err, ErrInvalidRoutePath) {
			t.Fatalf("ParseRoute(%q) err = %v, want ErrInvalidRoutePath", bad, err)
		}
	}
}

func TestSymbolicEPATH(t *testing.T) {
	epath, err := BuildSymbolicEPATH("Program.Tag")
	if err != nil {
		t.Fatalf("BuildSymbolicEPATH failed: %v", err)
	}
	if len(epath) != 16 || epath[0] != 0x91 || epath[1] != 7 || epath[9] != 0x00 {
		t.Fatalf("BuildSymbolicEPATH = % X", epath)
	}
	tag, err := DecodeSymbolicEPATH(epath)
	if err != nil || tag != "Program.Tag" {
		t.Fatalf("DecodeSymbolicEPATH = %q, %v", tag, err)
	}
	for _, bad := range []string{"", "a..b"} {
		if _, err := BuildSymbolicEPATH(bad); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("BuildSymbolicEPATH(%q) err = %v", bad, err)
		}
	}
	if _, err := DecodeSymbolicEPATH([]byte{0x20, 0x01}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for logical path")
	}
}
