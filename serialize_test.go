package vjson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeRoundtrip(t *testing.T) {
	modes := map[string]CompressMode{
		"none":    CompressNone,
		"fast":    CompressFast,
		"default": CompressDefault,
		"best":    CompressBest,
	}
	for name, mode := range modes {
		t.Run(name, func(t *testing.T) {
			s := NewSerializer()
			s.CompressMode(mode)
			for i, doc := range testCorpus {
				v, err := ToOwnedValue([]byte(doc))
				require.NoError(t, err, "corpus[%d]", i)

				blob := s.Serialize(nil, v)
				got, err := s.Deserialize(blob)
				require.NoError(t, err, "corpus[%d]", i)
				require.True(t, v.Equal(got), "corpus[%d]: roundtrip differs", i)
			}
		})
	}
}

func TestSerializeAppends(t *testing.T) {
	v, err := ToOwnedValue([]byte(`{"a":[1,2.5,"x"]}`))
	require.NoError(t, err)

	s := NewSerializer()
	prefix := []byte("prefix")
	blob := s.Serialize(prefix, v)
	require.Equal(t, "prefix", string(blob[:6]))

	got, err := s.Deserialize(blob[6:])
	require.NoError(t, err)
	require.True(t, v.Equal(got))
}

func TestSerializerReuse(t *testing.T) {
	s := NewSerializer()
	v1, err := ToOwnedValue([]byte(`[1,2,3,"abc"]`))
	require.NoError(t, err)
	v2, err := ToOwnedValue([]byte(`{"k":true}`))
	require.NoError(t, err)

	blob1 := s.Serialize(nil, v1)
	got1, err := s.Deserialize(blob1)
	require.NoError(t, err)

	blob2 := s.Serialize(nil, v2)
	got2, err := s.Deserialize(blob2)
	require.NoError(t, err)

	require.True(t, v1.Equal(got1))
	require.True(t, v2.Equal(got2))
}

func TestDeserializeCorrupt(t *testing.T) {
	s := NewSerializer()
	v, err := ToOwnedValue([]byte(`{"a":1}`))
	require.NoError(t, err)
	blob := s.Serialize(nil, v)

	_, err = s.Deserialize(nil)
	require.Error(t, err)

	_, err = s.Deserialize([]byte{0xfe})
	require.Error(t, err)

	_, err = s.Deserialize(blob[:len(blob)/2])
	require.Error(t, err)
}

func TestDeserializeOwnsStrings(t *testing.T) {
	buf := []byte(`{"key":"payload"}`)
	v, err := ToOwnedValue(buf)
	require.NoError(t, err)

	s := NewSerializer()
	blob := s.Serialize(nil, v)
	got, err := s.Deserialize(blob)
	require.NoError(t, err)

	for i := range blob {
		blob[i] = 0
	}
	obj, err := got.Object()
	require.NoError(t, err)
	val, ok := obj.Get("key")
	require.True(t, ok)
	str, err := val.String()
	require.NoError(t, err)
	require.Equal(t, "payload", str)
}
