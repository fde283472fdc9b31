package pixel

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want NumericKind
	}{
		{"uint8", KindUint8},
		{"int8", KindInt8},
		{"uint16", KindUint16},
		{"int16", KindInt16},
		{"int32", KindInt32},
		{"float32", KindFloat32},
		{"float64", KindFloat64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.name)
			if err != nil {
				t.Fatalf("ParseKind(%q) failed: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestParseKind_Unknown(t *testing.T) {
	for _, name := range []string{"", "uint32", "float16", "complex64"} {
		if _, err := ParseKind(name); !errors.Is(err, ErrUnsupportedDepth) {
			t.Errorf("ParseKind(%q): got %v, want ErrUnsupportedDepth", name, err)
		}
	}
}

func TestNormalize_RoundTripIntegerKinds(t *testing.T) {
	tests := []struct {
		kind    NumericKind
		samples []int64
		encode  func(buf []byte, v int64)
	}{
		{KindUint8, []int64{0, 1, 127, 254, 255},
			func(b []byte, v int64) { b[0] = byte(v) }},
		{KindInt8, []int64{-128, -1, 0, 1, 127},
			func(b []byte, v int64) { b[0] = byte(int8(v)) }},
		{KindUint16, []int64{0, 1, 255, 32768, 65535},
			func(b []byte, v int64) { binary.LittleEndian.PutUint16(b, uint16(v)) }},
		{KindInt16, []int64{-32768, -1, 0, 1, 32767},
			func(b []byte, v int64) { binary.LittleEndian.PutUint16(b, uint16(int16(v))) }},
		{KindInt32, []int64{-2147483648, -1, 0, 1, 2147483647},
			func(b []byte, v int64) { binary.LittleEndian.PutUint32(b, uint32(int32(v))) }},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			size := tt.kind.ByteSize()
			raw := make([]byte, len(tt.samples)*size)
			for i, v := range tt.samples {
				tt.encode(raw[i*size:], v)
			}

			img, err := Normalize(raw, len(tt.samples), 1, 1, tt.kind)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}

			for i, want := range tt.samples {
				got := int64(math.Round(img.Spec.NativeValue(img.Pix[i])))
				if got < want-1 || got > want+1 {
					t.Errorf("sample %d: round-trip %d, want %d (±1)", i, got, want)
				}
			}
		})
	}
}

func TestNormalize_Float32PassThrough(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, float32(math.Pi)}
	raw := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	img, err := Normalize(raw, len(values), 1, 1, KindFloat32)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i, want := range values {
		if img.Pix[i] != want {
			t.Errorf("sample %d: got %v, want bit-identical %v", i, img.Pix[i], want)
		}
	}
}

func TestNormalize_Float64Narrows(t *testing.T) {
	values := []float64{0, 1, math.Pi, -2.5}
	raw := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}

	img, err := Normalize(raw, len(values), 1, 1, KindFloat64)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i, want := range values {
		if img.Pix[i] != float32(want) {
			t.Errorf("sample %d: got %v, want %v", i, img.Pix[i], float32(want))
		}
	}
}

func TestNormalize_SwapsComponentOrder(t *testing.T) {
	// One BGR pixel: B=10, G=20, R=30.
	img, err := Normalize([]byte{10, 20, 30}, 1, 1, 3, KindUint8)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := []float32{30.0 / 255, 20.0 / 255, 10.0 / 255}
	for i := range want {
		if img.Pix[i] != want[i] {
			t.Errorf("channel %d: got %v, want %v", i, img.Pix[i], want[i])
		}
	}
}

func TestNormalize_SwapsAlphaUntouched(t *testing.T) {
	img, err := Normalize([]byte{10, 20, 30, 40}, 1, 1, 4, KindUint8)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if img.At(0, 0, 3) != 40.0/255 {
		t.Errorf("alpha: got %v, want %v", img.At(0, 0, 3), float32(40.0/255))
	}
}

func TestNormalize_UnsupportedChannels(t *testing.T) {
	for _, ch := range []int{0, 2, 5} {
		_, err := Normalize(make([]byte, 4*ch), 2, 2, ch, KindUint8)
		if ch == 0 {
			if err == nil {
				t.Errorf("channels=%d: expected error", ch)
			}
			continue
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("channels=%d: got %v, want ErrUnsupportedFormat", ch, err)
		}
	}
}

func TestNormalize_SizeMismatch(t *testing.T) {
	if _, err := Normalize(make([]byte, 5), 2, 2, 1, KindUint8); err == nil {
		t.Error("expected error for buffer/spec size mismatch")
	}
}

func TestNew_AssignsMonotonicIDs(t *testing.T) {
	a, err := New(1, 1, 1, KindUint8, []float32{0})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := New(1, 1, 1, KindUint8, []float32{0})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if b.ID <= a.ID {
		t.Errorf("IDs not monotonic: first %d, second %d", a.ID, b.ID)
	}
}

func TestFromImage_Gray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = byte(i * 40)
	}

	img, err := FromImage(src)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	if img.Spec.Channels != 1 || img.Spec.OriginalKind != KindUint8 {
		t.Fatalf("spec: got %+v, want 1 channel uint8", img.Spec)
	}
	if img.At(1, 1, 0) != float32(160)/255 {
		t.Errorf("sample (1,1): got %v, want %v", img.At(1, 1, 0), float32(160)/255)
	}
}

func TestFromImage_Color(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})

	img, err := FromImage(src)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	if img.Spec.Channels != 4 {
		t.Fatalf("channels: got %d, want 4", img.Spec.Channels)
	}
	if img.At(0, 0, 0) != 1 || img.At(0, 0, 2) != float32(51)/255 {
		t.Errorf("pixel (0,0): got R=%v B=%v, want R=1 B=%v",
			img.At(0, 0, 0), img.At(0, 0, 2), float32(51)/255)
	}
}

func TestToNRGBA(t *testing.T) {
	img, err := New(2, 1, 1, KindFloat32, []float32{0.5, 1.5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out := img.ToNRGBA()
	if got := out.NRGBAAt(0, 0); got.R != 128 || got.G != 128 || got.B != 128 || got.A != 255 {
		t.Errorf("gray replication: got %+v, want 128 gray opaque", got)
	}
	if got := out.NRGBAAt(1, 0); got.R != 255 {
		t.Errorf("clamping: got %+v, want saturated white", got)
	}
}

func TestNativeValue(t *testing.T) {
	spec := ImageSpec{Width: 1, Height: 1, Channels: 1, OriginalKind: KindUint16}
	if got := spec.NativeValue(0.5); got != 32767.5 {
		t.Errorf("NativeValue(0.5) for uint16 = %v, want 32767.5", got)
	}

	spec.OriginalKind = KindFloat32
	if got := spec.NativeValue(0.5); got != 0.5 {
		t.Errorf("NativeValue(0.5) for float32 = %v, want 0.5", got)
	}
}
