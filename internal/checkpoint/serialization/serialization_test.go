package serialization

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/viant/bintly"

	"github.com/yndnr/reactq/internal/core/domain"
)

type point struct {
	X, Y int32
	Tag  string
}

func (p *point) EncodeBinary(w *bintly.Writer) error {
	w.Int32(p.X)
	w.Int32(p.Y)
	w.String(p.Tag)
	return nil
}

func (p *point) DecodeBinary(r *bintly.Reader) error {
	r.Int32(&p.X)
	r.Int32(&p.Y)
	r.String(&p.Tag)
	return nil
}

func TestVersion(t *testing.T) {
	tests := []struct {
		a, b Version
		want int
	}{
		{V(1, 0, 0, 0), V(1, 0, 0, 0), 0},
		{V(1, 0, 0, 0), V(3, 0, 0, 0), -1},
		{V(3, 1, 0, 0), V(3, 0, 9, 9), 1},
		{V(3, 0, 0, 1), V(3, 0, 0, 2), -1},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"_"+tt.b.String(), func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}

	v, err := ParseVersion("3.1")
	if err != nil || v != V(3, 1, 0, 0) {
		t.Errorf("ParseVersion(3.1) = %v, %v", v, err)
	}
	for _, bad := range []string{"", "a.b", "1.2.3.4.5", "-1"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Errorf("ParseVersion(%q) should fail", bad)
		}
	}
}

func TestString_DotNetEncoding(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		prefix []byte
	}{
		{"empty", "", []byte{0x00}},
		{"short", "bintly", []byte{0x06}},
		{"two byte prefix", string(bytes.Repeat([]byte("x"), 200)), []byte{0xC8, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteString(&buf, tt.value); err != nil {
				t.Fatalf("WriteString: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), tt.prefix) {
				t.Errorf("prefix = % x, want % x", buf.Bytes()[:len(tt.prefix)], tt.prefix)
			}
			got, err := ReadString(&buf)
			if err != nil {
				t.Fatalf("ReadString: %v", err)
			}
			if got != tt.value {
				t.Errorf("ReadString = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestVersion_Wire(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVersion(&buf, V(1, 2, 3, 4)); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x", buf.Bytes(), want)
	}
	v, err := ReadVersion(&buf)
	if err != nil || v != V(1, 2, 3, 4) {
		t.Errorf("ReadVersion = %v, %v", v, err)
	}
}

func TestSerializers_RoundTrip(t *testing.T) {
	serializers := []Serializer{NewBintly(BintlyVersion), NewJSON(JSONVersion)}

	for _, s := range serializers {
		t.Run(s.Name(), func(t *testing.T) {
			var buf bytes.Buffer
			now := time.Unix(1700000000, 0).UTC()

			if err := s.Serialize(&buf, int32(42)); err != nil {
				t.Fatalf("Serialize int32: %v", err)
			}
			if err := s.Serialize(&buf, "hello"); err != nil {
				t.Fatalf("Serialize string: %v", err)
			}
			if err := s.Serialize(&buf, []byte{1, 2, 3}); err != nil {
				t.Fatalf("Serialize bytes: %v", err)
			}
			if err := s.Serialize(&buf, &point{X: 1, Y: -2, Tag: "p"}); err != nil {
				t.Fatalf("Serialize point: %v", err)
			}
			if err := s.Serialize(&buf, now); err != nil {
				t.Fatalf("Serialize time: %v", err)
			}

			var i int32
			var str string
			var bs []byte
			var p point
			var ts time.Time
			for _, target := range []any{&i, &str, &bs, &p, &ts} {
				if err := s.Deserialize(&buf, target); err != nil {
					t.Fatalf("Deserialize %T: %v", target, err)
				}
			}

			if i != 42 || str != "hello" || !bytes.Equal(bs, []byte{1, 2, 3}) {
				t.Errorf("got %d %q %v", i, str, bs)
			}
			if p != (point{X: 1, Y: -2, Tag: "p"}) {
				t.Errorf("point = %+v", p)
			}
			if !ts.Equal(now) {
				t.Errorf("time = %v, want %v", ts, now)
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes left over", buf.Len())
			}
		})
	}
}

func TestBintly_UnsupportedType(t *testing.T) {
	s := NewBintly(BintlyVersion)
	var buf bytes.Buffer

	err := s.Serialize(&buf, struct{ A chan int }{})
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("Serialize err = %v, want ErrUnsupportedType", err)
	}

	if err := s.Serialize(&buf, int64(1)); err != nil {
		t.Fatal(err)
	}
	var c complex128
	if err := s.Deserialize(&buf, &c); !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("Deserialize err = %v, want ErrUnsupportedType", err)
	}
}

func TestBintly_TruncatedChunk(t *testing.T) {
	s := NewBintly(BintlyVersion)
	var buf bytes.Buffer
	if err := s.Serialize(&buf, "truncate me"); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-3]

	var out string
	if err := s.Deserialize(bytes.NewReader(data), &out); err == nil {
		t.Error("Deserialize of truncated chunk should fail")
	}
}

func TestBintly_CorruptChunk(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", nil},
		{"alloc tag without size", []byte{0x01}},
		{"unknown tag", []byte{0xFF}},
		{"int32 tag with short size", []byte{0x07, 0x01}},
	}

	s := NewBintly(BintlyVersion)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteInt32(&buf, int32(len(tt.payload))); err != nil {
				t.Fatal(err)
			}
			buf.Write(tt.payload)

			var out int32
			err := s.Deserialize(&buf, &out)
			if !errors.Is(err, domain.ErrCorruptValue) {
				t.Errorf("Deserialize() error = %v, want ErrCorruptValue", err)
			}
		})
	}
}

func TestReadChunk_HugeLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInt32(&buf, 0x3fffffff); err != nil {
		t.Fatal(err)
	}
	buf.WriteByte(0x01)

	if _, err := readChunk(&buf); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readChunk() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestRegister_CustomType(t *testing.T) {
	type celsius float64
	Register(func(w *bintly.Writer, v celsius) { w.Float64(float64(v)) },
		func(r *bintly.Reader, v *celsius) {
			var f float64
			r.Float64(&f)
			*v = celsius(f)
		})

	s := NewBintly(BintlyVersion)
	var buf bytes.Buffer
	if err := s.Serialize(&buf, celsius(21.5)); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var got celsius
	if err := s.Deserialize(&buf, &got); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got != 21.5 {
		t.Errorf("got %v, want 21.5", got)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultPolicy()

	if r.Default().Name() != BintlyName {
		t.Errorf("Default() = %s, want %s", r.Default().Name(), BintlyName)
	}

	s, err := r.Resolve(JSONName, JSONVersion)
	if err != nil || s.Name() != JSONName {
		t.Errorf("Resolve(json) = %v, %v", s, err)
	}

	if _, err := r.Resolve(BintlyName, V(9, 0, 0, 0)); !errors.Is(err, domain.ErrUnknownSerializer) {
		t.Errorf("Resolve(unknown) err = %v", err)
	}

	old := NewBintly(V(0, 9, 0, 0))
	r.Register(old)
	if got, err := r.Resolve(BintlyName, V(0, 9, 0, 0)); err != nil || got != old {
		t.Errorf("Resolve(old bintly) = %v, %v", got, err)
	}

	if err := r.SetDefault(JSONName, JSONVersion); err != nil {
		t.Fatal(err)
	}
	if r.Default().Name() != JSONName {
		t.Error("SetDefault did not take effect")
	}

	names := r.Names()
	if len(names) != 3 || names[0] != "bintly/0.9.0.0" {
		t.Errorf("Names() = %v", names)
	}
}
