package algebra

import (
	"encoding/json"
	"math/big"
	"os"
	"testing"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
)

// The pinned digests in testdata/hash_vectors.json are shared with the
// proving circuit. A mismatch here means the hash composition drifted and
// every existing commitment and proof is broken.

type hashVector struct {
	In  []string `json:"in"`
	Out string   `json:"out"`
}

type hashVectorFile struct {
	Hash2 []hashVector `json:"hash2"`
	Hash5 []hashVector `json:"hash5"`
	Fold  []hashVector `json:"fold"`
}

func loadHashVectors(t *testing.T) *hashVectorFile {
	t.Helper()
	raw, err := os.ReadFile("../../testdata/hash_vectors.json")
	if err != nil {
		t.Fatal(err)
	}
	v := &hashVectorFile{}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatal(err)
	}
	return v
}

func vecEl(t *testing.T, s string) field.Element {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("vector element %q is not decimal", s)
	}
	var e field.Element
	e.SetBigInt(v)
	return e
}

func TestHash2Vectors(t *testing.T) {
	vf := loadHashVectors(t)
	if len(vf.Hash2) == 0 {
		t.Fatal("no hash2 vectors")
	}
	for _, v := range vf.Hash2 {
		got := Hash2(vecEl(t, v.In[0]), vecEl(t, v.In[1]))
		if field.Hex(got) != v.Out {
			t.Fatalf("Hash2(%v) = %s, pinned %s", v.In, field.Hex(got), v.Out)
		}
	}
}

func TestHash5Vectors(t *testing.T) {
	vf := loadHashVectors(t)
	if len(vf.Hash5) == 0 {
		t.Fatal("no hash5 vectors")
	}
	for _, v := range vf.Hash5 {
		got := Hash5(
			vecEl(t, v.In[0]), vecEl(t, v.In[1]), vecEl(t, v.In[2]),
			vecEl(t, v.In[3]), vecEl(t, v.In[4]),
		)
		if field.Hex(got) != v.Out {
			t.Fatalf("Hash5(%v) = %s, pinned %s", v.In, field.Hex(got), v.Out)
		}
	}
}

func TestFoldVectors(t *testing.T) {
	vf := loadHashVectors(t)
	if len(vf.Fold) == 0 {
		t.Fatal("no fold vectors")
	}
	for _, v := range vf.Fold {
		xs := make([]field.Element, len(v.In))
		for i, s := range v.In {
			xs[i] = vecEl(t, s)
		}
		got := Fold(xs)
		if field.Hex(got) != v.Out {
			t.Fatalf("Fold(%v) = %s, pinned %s", v.In, field.Hex(got), v.Out)
		}
	}
}
