// Package algebra exposes the fixed-arity algebraic hashes the relay shares
// with its proving circuit. The hashes are MiMC over the BN254 scalar field;
// the compositions here are protocol constants and must stay bit-exact with
// the circuit or proofs stop verifying.
package algebra

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
)

// Hash2 hashes two field elements.
func Hash2(a, b field.Element) field.Element {
	return sum(a, b)
}

// Hash5 hashes five field elements.
func Hash5(a, b, c, d, e field.Element) field.Element {
	return sum(a, b, c, d, e)
}

// Fold reduces a list of elements with the N-ary rule
//
//	Fold([])          = 0
//	Fold([x])         = x
//	Fold([x, rest..]) = Hash2(x, Fold(rest))
func Fold(xs []field.Element) field.Element {
	var acc field.Element
	if len(xs) == 0 {
		return acc
	}
	acc = xs[len(xs)-1]
	for i := len(xs) - 2; i >= 0; i-- {
		acc = Hash2(xs[i], acc)
	}
	return acc
}

func sum(xs ...field.Element) field.Element {
	h := mimc.NewMiMC()
	for i := range xs {
		b := xs[i].Bytes()
		// Canonical field-element bytes never fail the block write.
		_, _ = h.Write(b[:])
	}
	var out field.Element
	out.SetBytes(h.Sum(nil))
	return out
}
