package serialization

import (
	"reflect"
	"sync"
	"time"

	"github.com/viant/bintly"
)

type codec struct {
	encode func(w *bintly.Writer, v any)
	decode func(r *bintly.Reader, v any)
}

var codecs sync.Map // reflect.Type -> codec

// Register adds a binary codec for T to the process-wide table used by the
// bintly serializer. Registering the same type twice replaces the codec.
func Register[T any](enc func(w *bintly.Writer, v T), dec func(r *bintly.Reader, v *T)) {
	codecs.Store(reflect.TypeOf((*T)(nil)).Elem(), codec{
		encode: func(w *bintly.Writer, v any) { enc(w, v.(T)) },
		decode: func(r *bintly.Reader, v any) { dec(r, v.(*T)) },
	})
}

func lookupCodec(t reflect.Type) (codec, bool) {
	c, ok := codecs.Load(t)
	if !ok {
		return codec{}, false
	}
	return c.(codec), true
}

func init() {
	Register(func(w *bintly.Writer, v bool) { w.Bool(v) },
		func(r *bintly.Reader, v *bool) { r.Bool(v) })
	Register(func(w *bintly.Writer, v int) { w.Int(v) },
		func(r *bintly.Reader, v *int) { r.Int(v) })
	Register(func(w *bintly.Writer, v int32) { w.Int32(v) },
		func(r *bintly.Reader, v *int32) { r.Int32(v) })
	Register(func(w *bintly.Writer, v int64) { w.Int64(v) },
		func(r *bintly.Reader, v *int64) { r.Int64(v) })
	Register(func(w *bintly.Writer, v uint32) { w.Uint32(v) },
		func(r *bintly.Reader, v *uint32) { r.Uint32(v) })
	Register(func(w *bintly.Writer, v uint64) { w.Uint64(v) },
		func(r *bintly.Reader, v *uint64) { r.Uint64(v) })
	Register(func(w *bintly.Writer, v float64) { w.Float64(v) },
		func(r *bintly.Reader, v *float64) { r.Float64(v) })
	Register(func(w *bintly.Writer, v string) { w.String(v) },
		func(r *bintly.Reader, v *string) { r.String(v) })
	Register(func(w *bintly.Writer, v []byte) { w.Uint8s(v) },
		func(r *bintly.Reader, v *[]byte) { r.Uint8s(v) })
	Register(func(w *bintly.Writer, v []string) { w.Strings(v) },
		func(r *bintly.Reader, v *[]string) { r.Strings(v) })
	Register(func(w *bintly.Writer, v []int64) { w.Int64s(v) },
		func(r *bintly.Reader, v *[]int64) { r.Int64s(v) })
	Register(func(w *bintly.Writer, v time.Time) { w.Time(v) },
		func(r *bintly.Reader, v *time.Time) { r.Time(v) })
}
