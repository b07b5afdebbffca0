package vjson

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

// benchDocument builds a medium-sized record batch resembling typical API
// payloads: mixed strings, numbers, booleans and nesting.
func benchDocument(records int) []byte {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < records; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(`{"id":`)
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(`,"name":"user-`)
		sb.WriteString(strconv.Itoa(i * 7))
		sb.WriteString(`","email":"user`)
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(`@example.com","active":`)
		if i%3 == 0 {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		sb.WriteString(`,"score":`)
		sb.WriteString(strconv.FormatFloat(float64(i)*0.375, 'g', -1, 64))
		sb.WriteString(`,"tags":["alpha","beta\tgamma"],"meta":{"visits":`)
		sb.WriteString(strconv.Itoa(i * 13 % 997))
		sb.WriteString(`,"region":null}}`)
	}
	sb.WriteByte(']')
	return []byte(sb.String())
}

func BenchmarkParseBorrowed(b *testing.B) {
	src := benchDocument(1000)
	buf := make([]byte, len(src))
	p, _ := NewParser()
	b.SetBytes(int64(len(src)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(buf, src) // the parse mutates the buffer
		if _, err := p.ParseBorrowed(buf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseOwned(b *testing.B) {
	src := benchDocument(1000)
	buf := make([]byte, len(src))
	p, _ := NewParser()
	b.SetBytes(int64(len(src)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(buf, src)
		if _, err := p.ParseOwned(buf); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseStage1Only(b *testing.B) {
	src := benchDocument(1000)
	p, _ := NewParser()
	b.SetBytes(int64(len(src)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if perr := p.findStructuralIndices(src); perr != nil {
			b.Fatal(perr)
		}
	}
}

func BenchmarkEncodingJson(b *testing.B) {
	src := benchDocument(1000)
	b.SetBytes(int64(len(src)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var v interface{}
		if err := json.Unmarshal(src, &v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJsoniter(b *testing.B) {
	src := benchDocument(1000)
	b.SetBytes(int64(len(src)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var v interface{}
		if err := jsoniter.Unmarshal(src, &v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSerialize(b *testing.B) {
	v, err := ToOwnedValue(benchDocument(1000))
	if err != nil {
		b.Fatal(err)
	}
	modes := []struct {
		name string
		mode CompressMode
	}{
		{"none", CompressNone},
		{"fast", CompressFast},
		{"default", CompressDefault},
		{"best", CompressBest},
	}
	for _, m := range modes {
		b.Run(m.name, func(b *testing.B) {
			s := NewSerializer()
			s.CompressMode(m.mode)
			var blob []byte
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				blob = s.Serialize(blob[:0], v)
			}
			b.SetBytes(int64(len(blob)))
		})
	}
}
